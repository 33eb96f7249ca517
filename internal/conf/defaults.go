// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "annodb")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "annodb.log")

	viper.SetDefault("input.path", "")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "annodb.db")

	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "annodb")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.database", "annodb")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", 3306)

	viper.SetDefault("ingest.batchsize", 500)
	viper.SetDefault("ingest.boundspolicy", BoundsReject)
	viper.SetDefault("ingest.includesegmentation", false)
	viper.SetDefault("ingest.subset", "")
	viper.SetDefault("ingest.limit", 0)
}
