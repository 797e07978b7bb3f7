// Package config loads the YAML configuration of the images demo.
//
// A configuration file is decoded over Default, so any key may be omitted.
// Unknown keys are rejected, and the result is validated with struct tags
// plus the telemetry rules; every problem found is reported in one
// InvalidConfigError.
//
//	database:
//	  path: data/images.db
//	  busy_timeout: 5s
//	blob:
//	  compress: true
//	pool:
//	  tx_mode: handle
//	telemetry:
//	  logging:
//	    level: debug
//
// StoreConfig and TxMode translate the loaded values into the options of the
// stores and pool packages.
package config
