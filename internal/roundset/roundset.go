// Package roundset builds face-emotion round definitions from a stimulus
// catalog.
package roundset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vytor/gazetest/internal/layout"
	"github.com/vytor/gazetest/internal/models"
)

const (
	DifficultyEasy = "facil"
	DifficultyHard = "dificil"

	MinRounds = 1
	MaxRounds = 10
)

var ErrInvalidParams = errors.New("invalid round set parameters")

// emotionLetters maps an emotion to the 4th "_"-separated token of file names.
var emotionLetters = map[string]string{
	"Alegría":  "h",
	"Tristeza": "s",
	"Enfado":   "f",
	"Asco":     "d",
	"Enojo":    "a",
	"Neutral":  "n",
}

type Params struct {
	Folders    []string `json:"folders"`
	Emotion    string   `json:"emotion"`
	Version    string   `json:"version"`    // "a" or "b"
	Difficulty string   `json:"difficulty"` // "facil" or "dificil"
	Rounds     int      `json:"rounds"`
}

func (p Params) validate(c *Catalog) error {
	if len(p.Folders) == 0 {
		return fmt.Errorf("%w: no folders selected", ErrInvalidParams)
	}
	if _, ok := emotionLetters[p.Emotion]; !ok {
		return fmt.Errorf("%w: unknown emotion %q", ErrInvalidParams, p.Emotion)
	}
	if p.Rounds < MinRounds || p.Rounds > MaxRounds {
		return fmt.Errorf("%w: rounds must be between %d and %d", ErrInvalidParams, MinRounds, MaxRounds)
	}
	switch p.Difficulty {
	case DifficultyEasy, DifficultyHard:
	default:
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidParams, p.Difficulty)
	}
	if p.Version != "a" && p.Version != "b" {
		return fmt.Errorf("%w: version must be a or b", ErrInvalidParams)
	}
	known := map[string]bool{}
	for _, f := range c.Folders() {
		known[f] = true
	}
	for _, f := range p.Folders {
		if !known[f] {
			return fmt.Errorf("%w: unknown folder %q", ErrInvalidParams, f)
		}
	}
	return nil
}

// fileTokens returns the emotion letter and version of names like
// "AF01_F_30_h_a.jpg". ok is false for names with fewer than five tokens.
func fileTokens(file string) (emotion, version string, ok bool) {
	parts := strings.Split(file, "_")
	if len(parts) < 5 {
		return "", "", false
	}
	version, _, _ = strings.Cut(parts[4], ".")
	return parts[3], version, true
}

// Build returns Rounds x len(Folders) definitions: for every round, one per
// selected folder, in selection order. Stimuli are the folder's images in a
// shuffled order; the target is the image showing the chosen emotion, or the
// folder's first image when none does. Easy mode keeps only the chosen version
// of the target-emotion images.
func Build(c *Catalog, p Params, src layout.Source) ([]models.RoundDefinition, error) {
	if err := p.validate(c); err != nil {
		return nil, err
	}
	letter := emotionLetters[p.Emotion]

	defs := make([]models.RoundDefinition, 0, p.Rounds*len(p.Folders))
	for i := 0; i < p.Rounds; i++ {
		for _, folder := range p.Folders {
			images := c.folderImages(folder)
			if p.Difficulty == DifficultyEasy {
				images = keepVersion(images, letter, p.Version)
			}
			if len(images) == 0 {
				return nil, fmt.Errorf("%w: folder %q has no usable images", ErrInvalidParams, folder)
			}

			target := images[0].ID
			for _, img := range images {
				if emotion, _, ok := fileTokens(img.File); ok && emotion == letter {
					target = img.ID
					break
				}
			}

			layout.Shuffle(src, len(images), func(a, b int) {
				images[a], images[b] = images[b], images[a]
			})
			defs = append(defs, models.RoundDefinition{
				Stimuli:  images,
				TargetID: target,
				Folder:   folder,
			})
		}
	}
	return defs, nil
}

func keepVersion(images []models.Stimulus, letter, version string) []models.Stimulus {
	out := images[:0:0]
	for _, img := range images {
		emotion, v, ok := fileTokens(img.File)
		if ok && emotion == letter && v != version {
			continue
		}
		out = append(out, img)
	}
	return out
}
