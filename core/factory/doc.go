// Package factory lets infrastructure packages register constructors under a
// type name so that configuration can pick them. The metrics section uses it:
//
//	metrics:
//	  sinks:
//	    - type: prometheus
//	    - type: influx
//	      conf:
//	        url: http://influx:8086
//	        bucket: sessions
//	        timeout: 5s
//
// Each entry becomes a ModuleConfig. The registered constructor turns Conf
// into its own settings struct with Decode.
package factory
