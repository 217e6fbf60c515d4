// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
// Clinical thresholds here are tunable starting points, not validated
// reference values; deployments are expected to review them.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "MedAI")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/medai.log")

	viper.SetDefault("ingestion.canonicalrate", 500)
	viper.SetDefault("ingestion.minsamplerate", 100)
	viper.SetDefault("ingestion.maxsamplerate", 2000)

	viper.SetDefault("quality.saturationweight", 0.25)
	viper.SetDefault("quality.baselineweight", 0.20)
	viper.SetDefault("quality.noiseweight", 0.25)
	viper.SetDefault("quality.flatlineweight", 0.30)
	viper.SetDefault("quality.windowseconds", 1.0)
	viper.SetDefault("quality.windowthreshold", 0.5)
	viper.SetDefault("quality.floor", 0.3)

	viper.SetDefault("features.bandlowhz", 5.0)
	viper.SetDefault("features.bandhighhz", 15.0)
	viper.SetDefault("features.refractoryms", 200)
	viper.SetDefault("features.searchwindowms", 100)
	viper.SetDefault("features.medianbeats", 8)
	viper.SetDefault("features.primarylead", "II")
	viper.SetDefault("features.integrationms", 120)
	viper.SetDefault("features.thresholdfactor", 0.25)

	viper.SetDefault("classifier.timeout", 5*time.Second)
	viper.SetDefault("classifier.topn", 10)
	viper.SetDefault("classifier.minconfidence", 0.05)

	viper.SetDefault("urgency.sepsisresprate", 22)
	viper.SetDefault("urgency.sepsissystolicbp", 100)
	viper.SetDefault("urgency.chestpainageminor", 45)
	viper.SetDefault("urgency.chestpainagemajor", 65)
	viper.SetDefault("urgency.tachycardiahr", 120)
	viper.SetDefault("urgency.bradycardiahr", 45)
	viper.SetDefault("urgency.hypoxiaspo2", 92)
	viper.SetDefault("urgency.fevertemp", 38.3)
	viper.SetDefault("urgency.hypothermiatemp", 35.0)

	viper.SetDefault("validation.claimsla", 24*time.Hour)
	viper.SetDefault("validation.maxreoffers", 3)
	viper.SetDefault("validation.sweepinterval", time.Minute)

	viper.SetDefault("events.buffersize", 10000)
	viper.SetDefault("events.workers", 4)

	viper.SetDefault("notification.maxstored", 1000)
	viper.SetDefault("notification.mqtt.enabled", false)
	viper.SetDefault("notification.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("notification.mqtt.topic", "medai/alerts")
	viper.SetDefault("notification.mqtt.clientid", "medai-ecg")
	viper.SetDefault("notification.mqtt.timeout", 5*time.Second)

	viper.SetDefault("pipeline.workers", 4)
	viper.SetDefault("pipeline.queuesize", 64)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "medai.db")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.cachettl", 5*time.Minute)
}
