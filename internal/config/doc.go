// Package config loads the optional release settings file.
//
// A settings file supplies defaults for the options the CLI also exposes
// as flags (registry, image repository, push target, backends, filter).
// The format is chosen by file extension:
//
//   - YAML (.yaml, .yml), parsed with gopkg.in/yaml.v3
//   - TOML (.toml), parsed with github.com/pelletier/go-toml/v2
//   - JSON with comments (.json, .jsonc), comments stripped with
//     github.com/tidwall/jsonc before encoding/json decodes it
//
// Values set explicitly on the command line always win over the file.
package config
