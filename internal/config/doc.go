// Package config defines the crawl configuration, its defaults and
// validation, and the optional YAML settings file loader.
package config
