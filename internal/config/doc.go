// Package config handles configuration loading for mailroom.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from the MAILROOM_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/mailroom/mailroom.yaml
//  3. ~/.config/mailroom/mailroom.yaml
//
// Files ending in .toml are parsed as TOML, anything else as YAML. Both
// formats use the same keys.
//
// # Environment Variables
//
// A .env file next to the config file, or in the working directory, is
// loaded first. Values already set in the environment win. Then ${VAR_NAME}
// references are expanded; unset variables become empty strings:
//
//	agent:
//	  api_key: "${OPENAI_API_KEY}"
//
// # Durations
//
// Durations use time.ParseDuration syntax:
//
//	poll:
//	  interval: "15s"          # ignored when poll.schedule is set
//	  provider_timeout: "30s"
//	agent:
//	  timeout: "60s"
//	threads:
//	  reply_guard_ttl: "10m"   # 0 disables the guard
//
// # Relative Paths
//
// mailbox.gmail.credentials_file, mailbox.gmail.token_file and
// agent.instructions_file are resolved against the config file's directory.
// A leading ~ expands to the home directory.
package config
