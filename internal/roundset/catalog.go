package roundset

import (
	"fmt"
	"io"
	"os"
	"path"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/vytor/gazetest/internal/models"
)

// Catalog is the set of stimulus images grouped by folder (one folder per
// photographed person).
type Catalog struct {
	Images []models.Stimulus `yaml:"images"`
}

// LoadCatalog reads a YAML catalog from path.
func LoadCatalog(filename string) (*Catalog, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return DecodeCatalog(f)
}

// DecodeCatalog parses a catalog and fills in missing ids and urls.
func DecodeCatalog(r io.Reader) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		if err == io.EOF {
			return &Catalog{}, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	seen := make(map[string]bool, len(c.Images))
	for i := range c.Images {
		img := &c.Images[i]
		if img.Folder == "" || img.File == "" {
			return nil, fmt.Errorf("catalog image %d: folder and file are required", i+1)
		}
		if img.ID == "" {
			img.ID = img.Folder + "/" + img.File
		}
		if img.URL == "" {
			img.URL = path.Join("/images", img.Folder, img.File)
		}
		if seen[img.ID] {
			return nil, fmt.Errorf("catalog image %d: duplicate id %q", i+1, img.ID)
		}
		seen[img.ID] = true
	}
	return &c, nil
}

// Folders lists the distinct folders in catalog order.
func (c *Catalog) Folders() []string {
	var out []string
	seen := map[string]bool{}
	for _, img := range c.Images {
		if !seen[img.Folder] {
			seen[img.Folder] = true
			out = append(out, img.Folder)
		}
	}
	return out
}

// Emotions lists the emotion names Build accepts, sorted.
func Emotions() []string {
	out := make([]string, 0, len(emotionLetters))
	for name := range emotionLetters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) folderImages(folder string) []models.Stimulus {
	var out []models.Stimulus
	for _, img := range c.Images {
		if img.Folder == folder {
			out = append(out, img)
		}
	}
	return out
}
