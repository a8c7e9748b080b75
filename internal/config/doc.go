// Package config provides configuration parsing for the derive CLI.
//
// The configuration is stored in derive.yaml at the project root, or at the
// path named by the DERIVE_CONFIG environment variable.
//
// # Configuration File Structure
//
//	inspector:
//	  addr: localhost:7070
//	  allowOrigins: ["http://localhost:3000"]
//	metrics:
//	  enabled: true
//	  namespace: derive
//	tracing:
//	  enabled: false
//	  tracerName: github.com/vango-dev/derive
//	scheduler:
//	  debounce: 0s
//	log:
//	  level: info
//	  format: text
//
// # Usage
//
//	cfg, err := config.LoadFromWorkingDir()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Inspector:", cfg.Inspector.Addr)
package config
