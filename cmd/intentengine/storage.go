package main

import (
	"fmt"

	storageeng "github.com/intentops/intentengine/engine/storage"
	storageengdiskv "github.com/intentops/intentengine/engine/storage/diskv"
	storageenginmem "github.com/intentops/intentengine/engine/storage/inmem"
	storageengmysql "github.com/intentops/intentengine/engine/storage/mysql"
	storageappr "github.com/intentops/intentengine/subsystem/approval/storage"
	storageapprdiskv "github.com/intentops/intentengine/subsystem/approval/storage/diskv"
	storageapprinmem "github.com/intentops/intentengine/subsystem/approval/storage/inmem"
	storageapprmysql "github.com/intentops/intentengine/subsystem/approval/storage/mysql"
	storageaudit "github.com/intentops/intentengine/subsystem/audit/storage"
	storageauditdiskv "github.com/intentops/intentengine/subsystem/audit/storage/diskv"
	storageauditinmem "github.com/intentops/intentengine/subsystem/audit/storage/inmem"
	storageauditmysql "github.com/intentops/intentengine/subsystem/audit/storage/mysql"

	_ "github.com/go-sql-driver/mysql"
)

type storageConfig struct {
	engine   storageeng.AllStorage
	approval storageappr.Storage
	audit    storageaudit.Storage
}

func parseStorage(name, dsn string) (*storageConfig, error) {
	switch name {
	case "inmem":
		return &storageConfig{
			engine:   storageenginmem.New(),
			approval: storageapprinmem.New(),
			audit:    storageauditinmem.New(),
		}, nil
	case "file", "diskv":
		if dsn == "" {
			dsn = "db"
		}
		return &storageConfig{
			engine:   storageengdiskv.New(dsn),
			approval: storageapprdiskv.New(dsn),
			audit:    storageauditdiskv.New(dsn),
		}, nil
	case "mysql":
		eng, err := storageengmysql.New(storageengmysql.WithDSN(dsn))
		if err != nil {
			return nil, err
		}
		appr, err := storageapprmysql.New(storageapprmysql.WithDSN(dsn))
		if err != nil {
			return nil, err
		}
		aud, err := storageauditmysql.New(storageauditmysql.WithDSN(dsn))
		if err != nil {
			return nil, err
		}
		return &storageConfig{
			engine:   eng,
			approval: appr,
			audit:    aud,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage: %s", name)
}
