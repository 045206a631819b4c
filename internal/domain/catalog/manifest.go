package catalog

// Manifest is the metadata file embedded in a published artifact
// (info.yaml). Its package block is cross-checked against the publish
// request before anything reaches the catalog.
type Manifest struct {
	Package ManifestPackage `yaml:"package" json:"package"`
}

// ManifestPackage is the identifying block of a manifest. Name may be
// namespace-qualified (namespace/name) or bare.
type ManifestPackage struct {
	Name         string            `yaml:"name" json:"name"`
	Version      string            `yaml:"version" json:"version"`
	Meta         map[string]any    `yaml:"meta,omitempty" json:"meta,omitempty"`
	Dependencies map[string]string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
}
