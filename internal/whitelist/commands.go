package whitelist

import "regexp"

// Reusable argument patterns. Compiled once; the registry is a process-lifetime
// constant.
var (
	poolArg      = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]{0,254}$`)
	datasetArg   = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+(/[a-zA-Z0-9_\-\.]+)*$`)
	snapshotArg  = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+(/[a-zA-Z0-9_\-\.]+)*@[a-zA-Z0-9_\-\.]+$`)
	deviceArg    = regexp.MustCompile(`^/dev/(sd[a-z][0-9]*|sr[0-9]+|nvme[0-9]+n[0-9]+(p[0-9]+)?)$`)
	containerArg = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.\-]*$`)
	propertyArg  = regexp.MustCompile(`^[a-zA-Z0-9_\-\./:]+=[a-zA-Z0-9_\-\.:/]+$`)
	// Components must not start with a dot, which also excludes "." and "..".
	mountArg     = regexp.MustCompile(`^/(mnt|media)/[a-zA-Z0-9_\-][a-zA-Z0-9_\-\.]*(/[a-zA-Z0-9_\-][a-zA-Z0-9_\-\.]*)*$`)
	testTypeArg  = regexp.MustCompile(`^(short|long|conveyance)$`)
	serviceArg   = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)
)

// Default returns the full static command table for the appliance. The table
// is the only source of executable paths; request data never contributes one.
func Default() *Registry {
	r := NewRegistry([]Command{
		// ZFS datasets
		{
			Name:        "zfs_list",
			Path:        "/usr/sbin/zfs",
			AllowedArgs: []string{"list", "-H", "-o", "name,used,avail,refer,mountpoint", "-t", "filesystem"},
			Description: "List ZFS filesystems",
		},
		{
			Name:        "zfs_get",
			Path:        "/usr/sbin/zfs",
			AllowedArgs: []string{"get", "-H", "-o", "value"},
			ArgPatterns: []*regexp.Regexp{serviceArg, datasetArg}, // property, dataset
			Description: "Get a single ZFS property value",
		},
		{
			Name:        "zfs_create",
			Path:        "/usr/sbin/zfs",
			AllowedArgs: []string{"create", "-p"},
			ArgPatterns: []*regexp.Regexp{datasetArg},
			Description: "Create ZFS dataset",
		},
		{
			Name:        "zfs_destroy",
			Path:        "/usr/sbin/zfs",
			AllowedArgs: []string{"destroy", "-r"},
			ArgPatterns: []*regexp.Regexp{datasetArg},
			Description: "Destroy ZFS dataset recursively",
		},
		{
			Name:        "zfs_snapshot",
			Path:        "/usr/sbin/zfs",
			AllowedArgs: []string{"snapshot"},
			ArgPatterns: []*regexp.Regexp{snapshotArg},
			Description: "Create ZFS snapshot",
		},
		{
			Name:        "zfs_list_snapshots",
			Path:        "/usr/sbin/zfs",
			AllowedArgs: []string{"list", "-t", "snapshot", "-r"},
			ArgPatterns: []*regexp.Regexp{datasetArg},
			Description: "List snapshots under a dataset",
		},
		{
			Name:        "zfs_set_property",
			Path:        "/usr/sbin/zfs",
			AllowedArgs: []string{"set"},
			ArgPatterns: []*regexp.Regexp{propertyArg, datasetArg},
			Description: "Set a ZFS property (mountpoint, quota, compression, ...)",
		},
		{
			Name:        "zfs_send",
			Path:        "/usr/sbin/zfs",
			AllowedArgs: []string{"send", "-R"},
			ArgPatterns: []*regexp.Regexp{snapshotArg},
			Description: "ZFS send for replication",
		},
		{
			Name:        "zfs_send_incremental",
			Path:        "/usr/sbin/zfs",
			AllowedArgs: []string{"send", "-R", "-i"},
			ArgPatterns: []*regexp.Regexp{snapshotArg, snapshotArg},
			Description: "ZFS incremental send",
		},
		{
			Name:        "zfs_receive",
			Path:        "/usr/sbin/zfs",
			AllowedArgs: []string{"receive", "-F"},
			ArgPatterns: []*regexp.Regexp{datasetArg},
			Description: "ZFS receive for replication",
		},

		// ZFS pools
		{
			Name:        "zpool_list",
			Path:        "/usr/sbin/zpool",
			AllowedArgs: []string{"list", "-H", "-o", "name,size,alloc,free,health"},
			Description: "List ZFS pools",
		},
		{
			Name:        "zpool_status",
			Path:        "/usr/sbin/zpool",
			AllowedArgs: []string{"status", "-P"},
			ArgPatterns: []*regexp.Regexp{poolArg},
			Description: "Get pool status",
		},
		{
			Name:        "zpool_create",
			Path:        "/usr/sbin/zpool",
			AllowedArgs: []string{"create"},
			Description: "Create ZFS pool (bespoke argument validation)",
		},
		{
			Name:        "zpool_destroy",
			Path:        "/usr/sbin/zpool",
			AllowedArgs: []string{"destroy"},
			ArgPatterns: []*regexp.Regexp{poolArg},
			Description: "Destroy ZFS pool",
		},
		{
			Name:        "zpool_scrub",
			Path:        "/usr/sbin/zpool",
			AllowedArgs: []string{"scrub"},
			ArgPatterns: []*regexp.Regexp{poolArg},
			Description: "Start ZFS pool scrub",
		},
		{
			Name:        "zpool_import",
			Path:        "/usr/sbin/zpool",
			AllowedArgs: []string{"import"},
			ArgPatterns: []*regexp.Regexp{poolArg},
			Description: "Import an exported ZFS pool",
		},
		{
			Name:        "zpool_add_cache",
			Path:        "/usr/sbin/zpool",
			AllowedArgs: []string{"add"},
			ArgPatterns: []*regexp.Regexp{poolArg, regexp.MustCompile(`^cache$`), deviceArg},
			Description: "Add L2ARC cache device to pool",
		},
		{
			Name:        "zpool_remove_device",
			Path:        "/usr/sbin/zpool",
			AllowedArgs: []string{"remove"},
			ArgPatterns: []*regexp.Regexp{poolArg, deviceArg},
			Description: "Remove cache or log device from pool",
		},

		// Docker
		{
			Name:        "docker_ps",
			Path:        "/usr/bin/docker",
			AllowedArgs: []string{"ps", "-a", "--format", "{{json .}}"},
			Description: "List containers",
		},
		{
			Name:        "docker_inspect",
			Path:        "/usr/bin/docker",
			AllowedArgs: []string{"inspect"},
			ArgPatterns: []*regexp.Regexp{containerArg},
			Description: "Inspect container",
		},
		{
			Name:        "docker_start",
			Path:        "/usr/bin/docker",
			AllowedArgs: []string{"start"},
			ArgPatterns: []*regexp.Regexp{containerArg},
			Description: "Start container",
		},
		{
			Name:        "docker_stop",
			Path:        "/usr/bin/docker",
			AllowedArgs: []string{"stop"},
			ArgPatterns: []*regexp.Regexp{containerArg},
			Description: "Stop container",
		},

		// Samba / NFS
		{
			Name:        "systemctl_reload_smbd",
			Path:        "/usr/bin/systemctl",
			AllowedArgs: []string{"reload", "smbd"},
			Description: "Reload Samba daemon",
		},
		{
			Name:        "testparm",
			Path:        "/usr/bin/testparm",
			AllowedArgs: []string{"-s"},
			Description: "Test Samba configuration",
		},
		{
			Name:        "exportfs_reload",
			Path:        "/usr/sbin/exportfs",
			AllowedArgs: []string{"-ra"},
			Description: "Reload NFS exports",
		},
		{
			Name:        "exportfs_list",
			Path:        "/usr/sbin/exportfs",
			AllowedArgs: []string{"-v"},
			Description: "List NFS exports",
		},

		// Disk hardware
		{
			Name:        "lsblk_list",
			Path:        "/usr/bin/lsblk",
			AllowedArgs: []string{"-dpno", "NAME,SIZE,MODEL,ROTA,TRAN,STATE"},
			Description: "List block devices",
		},
		{
			Name:        "hdparm_check",
			Path:        "/usr/sbin/hdparm",
			AllowedArgs: []string{"-C"},
			ArgPatterns: []*regexp.Regexp{deviceArg},
			Description: "Check disk power state",
		},
		{
			Name:        "hdparm_spindown",
			Path:        "/usr/sbin/hdparm",
			AllowedArgs: []string{"-y"},
			ArgPatterns: []*regexp.Regexp{deviceArg},
			Description: "Spin down disk",
		},
		{
			Name:        "smartctl_test",
			Path:        "/usr/sbin/smartctl",
			AllowedArgs: []string{"-t"},
			ArgPatterns: []*regexp.Regexp{testTypeArg, deviceArg},
			Description: "Start a SMART self-test",
		},
		{
			Name:        "smartctl_health",
			Path:        "/usr/sbin/smartctl",
			AllowedArgs: []string{"-H"},
			ArgPatterns: []*regexp.Regexp{deviceArg},
			Description: "Read SMART health summary",
		},

		// Share directories
		{
			Name:        "mkdir",
			Path:        "/usr/bin/mkdir",
			AllowedArgs: []string{"-p"},
			ArgPatterns: []*regexp.Regexp{mountArg},
			Description: "Create a share directory under an allowed root",
		},
		{
			Name:        "systemctl_status",
			Path:        "/usr/bin/systemctl",
			AllowedArgs: []string{"status", "--no-pager"},
			ArgPatterns: []*regexp.Regexp{serviceArg},
			Description: "Get service status",
		},
	})

	r.special["zpool_create"] = validateZpoolCreate
	return r
}
