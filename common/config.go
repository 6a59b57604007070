package common

import (
	"github.com/spf13/viper"
)

const (
	// CfgConfigPath defines custom config path
	CfgConfigPath = "config.path"
	// CfgDataPath defines custom DB path
	CfgDataPath = "data.path"

	// CfgBridgeCheckpointWindow defines the number of recent checkpoints retained in the queue.
	CfgBridgeCheckpointWindow = "bridge.checkpointWindow"
	// CfgBridgeCheckpointInterval defines the number of blocks after which a building
	// checkpoint advances to signing. Zero disables the transition.
	CfgBridgeCheckpointInterval = "bridge.checkpointInterval"

	// CfgStorageBackend selects the database backend ("leveldb" or "badger").
	CfgStorageBackend = "storage.backend"
	// CfgStorageLevelDBCacheMB sets the LevelDB block cache size in megabytes.
	CfgStorageLevelDBCacheMB = "storage.levelDBCacheMB"

	// CfgRPCEnabled sets whether to run the RPC service.
	CfgRPCEnabled = "rpc.enabled"
	// CfgRPCAddress sets the binding address of the RPC service.
	CfgRPCAddress = "rpc.address"
	// CfgRPCPort sets the port of the RPC service.
	CfgRPCPort = "rpc.port"
	// CfgRPCTimeoutSecs sets the timeout for RPC requests.
	CfgRPCTimeoutSecs = "rpc.timeoutSecs"

	// CfgLogLevels sets the log level, e.g. "*:info,bridge:debug".
	CfgLogLevels = "log.levels"
	// CfgLogDebug enables debug logging across all modules.
	CfgLogDebug = "log.debug"
)

func init() {
	viper.SetDefault(CfgBridgeCheckpointWindow, 100)
	viper.SetDefault(CfgBridgeCheckpointInterval, 0)

	viper.SetDefault(CfgStorageBackend, "leveldb")
	viper.SetDefault(CfgStorageLevelDBCacheMB, 256)

	viper.SetDefault(CfgRPCEnabled, true)
	viper.SetDefault(CfgRPCAddress, "127.0.0.1")
	viper.SetDefault(CfgRPCPort, "16888")
	viper.SetDefault(CfgRPCTimeoutSecs, 60)

	viper.SetDefault(CfgLogLevels, "*:info")
	viper.SetDefault(CfgLogDebug, false)
}
