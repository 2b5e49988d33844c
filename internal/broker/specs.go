package broker

// defaultSpecs declares the ordered, typed parameter list for every command
// key the daemon exposes. A key absent from this table cannot be executed even
// if the whitelist knows it.
func defaultSpecs() map[string]CommandSpec {
	specs := []CommandSpec{
		{Key: "zfs_list", Timeout: TimeoutFast},
		{Key: "zfs_get", Timeout: TimeoutFast, Params: []ParamSpec{
			{Name: "property", Type: ParamBoundedString},
			{Name: "name", Type: ParamDatasetName},
		}},
		{Key: "zfs_create", Timeout: TimeoutMedium, Params: []ParamSpec{
			{Name: "name", Type: ParamDatasetName},
		}},
		{Key: "zfs_destroy", Timeout: TimeoutSlow, Params: []ParamSpec{
			{Name: "name", Type: ParamDatasetName},
		}},
		{Key: "zfs_snapshot", Timeout: TimeoutMedium, Params: []ParamSpec{
			{Name: "name", Type: ParamSnapshotName},
		}},
		{Key: "zfs_list_snapshots", Timeout: TimeoutFast, Params: []ParamSpec{
			{Name: "name", Type: ParamDatasetName},
		}},
		{Key: "zfs_set_property", Timeout: TimeoutMedium, Params: []ParamSpec{
			{Name: "property", Type: ParamZFSPropertyKV},
			{Name: "name", Type: ParamDatasetName},
		}},
		{Key: "zfs_send", Timeout: TimeoutSlow, Params: []ParamSpec{
			{Name: "snapshot", Type: ParamSnapshotName},
		}},
		{Key: "zfs_send_incremental", Timeout: TimeoutSlow, Params: []ParamSpec{
			{Name: "base", Type: ParamSnapshotName},
			{Name: "snapshot", Type: ParamSnapshotName},
		}},
		{Key: "zfs_receive", Timeout: TimeoutSlow, Params: []ParamSpec{
			{Name: "name", Type: ParamDatasetName},
		}},

		{Key: "zpool_list", Timeout: TimeoutFast},
		{Key: "zpool_status", Timeout: TimeoutFast, Params: []ParamSpec{
			{Name: "name", Type: ParamPoolName},
		}},
		{Key: "zpool_create", Timeout: TimeoutSlow, Params: []ParamSpec{
			{Name: "flags", Type: ParamFlag, Optional: true},
			{Name: "name", Type: ParamPoolName},
			{Name: "vdev", Type: ParamVdevSpec},
		}},
		{Key: "zpool_destroy", Timeout: TimeoutSlow, Params: []ParamSpec{
			{Name: "name", Type: ParamPoolName},
		}},
		{Key: "zpool_scrub", Timeout: TimeoutSlow, Params: []ParamSpec{
			{Name: "name", Type: ParamPoolName},
		}},
		{Key: "zpool_import", Timeout: TimeoutSlow, Params: []ParamSpec{
			{Name: "name", Type: ParamPoolName},
		}},
		{Key: "zpool_add_cache", Timeout: TimeoutMedium, Params: []ParamSpec{
			{Name: "name", Type: ParamPoolName},
			{Name: "keyword", Type: ParamBoundedString},
			{Name: "device", Type: ParamDiskPath},
		}},
		{Key: "zpool_remove_device", Timeout: TimeoutMedium, Params: []ParamSpec{
			{Name: "name", Type: ParamPoolName},
			{Name: "device", Type: ParamDiskPath},
		}},

		{Key: "docker_ps", Timeout: TimeoutFast},
		{Key: "docker_inspect", Timeout: TimeoutFast, Params: []ParamSpec{
			{Name: "name", Type: ParamContainerName},
		}},
		{Key: "docker_start", Timeout: TimeoutMedium, Params: []ParamSpec{
			{Name: "name", Type: ParamContainerName},
		}},
		{Key: "docker_stop", Timeout: TimeoutMedium, Params: []ParamSpec{
			{Name: "name", Type: ParamContainerName},
		}},

		{Key: "systemctl_reload_smbd", Timeout: TimeoutMedium},
		{Key: "testparm", Timeout: TimeoutFast},
		{Key: "exportfs_reload", Timeout: TimeoutMedium},
		{Key: "exportfs_list", Timeout: TimeoutFast},

		{Key: "lsblk_list", Timeout: TimeoutFast},
		{Key: "hdparm_check", Timeout: TimeoutFast, Params: []ParamSpec{
			{Name: "device", Type: ParamDiskPath},
		}},
		{Key: "hdparm_spindown", Timeout: TimeoutFast, Params: []ParamSpec{
			{Name: "device", Type: ParamDiskPath},
		}},
		{Key: "smartctl_test", Timeout: TimeoutMedium, Params: []ParamSpec{
			{Name: "type", Type: ParamTestType},
			{Name: "device", Type: ParamDiskPath},
		}},
		{Key: "smartctl_health", Timeout: TimeoutFast, Params: []ParamSpec{
			{Name: "device", Type: ParamDiskPath},
		}},

		{Key: "mkdir", Timeout: TimeoutFast, Params: []ParamSpec{
			{Name: "path", Type: ParamSandboxedPath},
		}},
		{Key: "systemctl_status", Timeout: TimeoutFast, Params: []ParamSpec{
			{Name: "service", Type: ParamBoundedString},
		}},
	}

	byKey := make(map[string]CommandSpec, len(specs))
	for _, spec := range specs {
		byKey[spec.Key] = spec
	}
	return byKey
}
