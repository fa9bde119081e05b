// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/pakload/config.cue (or the platform
// equivalent), an explicit --config path, or config.cue in the working
// directory. Files are validated against the embedded #Config schema
// (config_schema.cue) before being merged over the defaults. PAKLOAD_*
// environment variables override both, e.g. PAKLOAD_LOG_LEVEL=debug or
// PAKLOAD_METRICS_ENABLED=true.
package config
