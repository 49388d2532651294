// Package setup resolves trained network setups and the metadata derived
// from their configuration.
//
// A setup lives in a directory named after it under one of an ordered list
// of search roots. The directory holds a typed configuration document
// (YAML or JSON) describing the network's input voxel size and the labels
// it predicts.
package setup

import "slices"

// Voxel size of setups trained on 8nm data.
var eightNM = []int{8, 8, 8}

// Raw dataset names inside a raw N5 container.
var (
	rawDatasets8nm = []string{"volumes/raw/s1", "volumes/subsampled/raw/0"}
	rawDatasets4nm = []string{"volumes/raw"}
)

// Config is the typed configuration of one setup.
type Config struct {
	// Name is the setup identifier. Defaults to the setup directory name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// VoxelSizeInput is the (z, y, x) voxel size the network consumes, in nm.
	VoxelSizeInput []int `json:"voxel_size_input" yaml:"voxel_size_input"`

	// VoxelSizeOutput is the voxel size of predictions. Defaults to VoxelSizeInput.
	VoxelSizeOutput []int `json:"voxel_size_output,omitempty" yaml:"voxel_size_output,omitempty"`

	Labels []Label `json:"labels" yaml:"labels"`

	// Path is the file the configuration was loaded from.
	Path string `json:"-" yaml:"-"`
}

// Label is one class the network predicts.
type Label struct {
	Name string `json:"name" yaml:"name"`

	// IDs are the annotation ids that make up this label.
	IDs []int `json:"label_ids" yaml:"label_ids"`

	ScaleLoss bool   `json:"scale_loss,omitempty" yaml:"scale_loss,omitempty"`
	ScaleKey  string `json:"scale_key,omitempty" yaml:"scale_key,omitempty"`
}

// ApplyDefaults fills optional fields.
func (c *Config) ApplyDefaults(name string) {
	if c.Name == "" {
		c.Name = name
	}
	if len(c.VoxelSizeOutput) == 0 && len(c.VoxelSizeInput) > 0 {
		c.VoxelSizeOutput = slices.Clone(c.VoxelSizeInput)
	}
}

// Is8nm reports whether the setup consumes 8nm isotropic input.
func (c *Config) Is8nm() bool {
	return slices.Equal(c.VoxelSizeInput, eightNM)
}

// RawDatasets lists the raw datasets to predict on for this setup, in
// preference order.
func (c *Config) RawDatasets() []string {
	if c.Is8nm() {
		return slices.Clone(rawDatasets8nm)
	}
	return slices.Clone(rawDatasets4nm)
}

// LabelNames returns the label names in configuration order.
func (c *Config) LabelNames() []string {
	names := make([]string, 0, len(c.Labels))
	for _, l := range c.Labels {
		names = append(names, l.Name)
	}
	return names
}

// HasAny reports whether any of ids belongs to the label.
func (l Label) HasAny(ids []int) bool {
	for _, id := range ids {
		if slices.Contains(l.IDs, id) {
			return true
		}
	}
	return false
}
