package util

import (
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/pegbridge/pegbridge/common"
)

func init() {
	customFormatter := new(log.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02 15:04:05"
	customFormatter.FullTimestamp = true
	log.SetFormatter(customFormatter)

	if viper.GetBool(common.CfgLogDebug) {
		log.SetLevel(log.DebugLevel)
	}
}

// GetLoggerForModule returns a logger for the given module, honoring the
// per-module levels configured via CfgLogLevels, e.g. "*:info,bridge:debug".
func GetLoggerForModule(module string) *log.Entry {
	logger := log.New()
	logger.Formatter = log.StandardLogger().Formatter
	logger.SetLevel(levelForModule(module))
	return logger.WithFields(log.Fields{"prefix": module})
}

func levelForModule(module string) log.Level {
	level := log.InfoLevel
	if viper.GetBool(common.CfgLogDebug) {
		level = log.DebugLevel
	}
	for _, entry := range strings.Split(viper.GetString(common.CfgLogLevels), ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		if len(parts) != 2 {
			continue
		}
		if parts[0] != module && parts[0] != "*" {
			continue
		}
		if parsed, err := log.ParseLevel(parts[1]); err == nil {
			level = parsed
			if parts[0] == module {
				return level
			}
		}
	}
	return level
}
