// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "VeSPA")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/vespa.log")
	viper.SetDefault("main.log.maxsize", 1048576)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "vespa.db")

	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "vespa")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.database", "vespa")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("zooniverse.baseurl", "https://www.zooniverse.org/api")
	viper.SetDefault("zooniverse.projectid", 0)
	viper.SetDefault("zooniverse.mainworkflowid", 0)
	viper.SetDefault("zooniverse.junkworkflowid", 0)
	viper.SetDefault("zooniverse.cacheexport", true)
	viper.SetDefault("zooniverse.cachedir", "cache/")
	viper.SetDefault("zooniverse.commitchanges", false)
	viper.SetDefault("zooniverse.cataloghost", "www.superwasp.org")

	viper.SetDefault("import.root", "import/")
	viper.SetDefault("import.lookupfile", "lookup.dat")
	viper.SetDefault("import.resultsfile", "results_total.dat")
	viper.SetDefault("import.limit", 0)
	viper.SetDefault("import.fluxurl", "https://wasp.cerit-sc.cz/photometry?objid=%s&format=json")

	viper.SetDefault("release.checkpointinterval", 500)
	viper.SetDefault("release.fitsattempts", 5)

	viper.SetDefault("export.dir", "exports/")

	viper.SetDefault("media.dir", "media/")
	viper.SetDefault("media.ploturl", "https://wasp.cerit-sc.cz/plot?objid=%s&period=%g")
	viper.SetDefault("media.workers", 4)
	viper.SetDefault("media.queuedepth", 256)
}
