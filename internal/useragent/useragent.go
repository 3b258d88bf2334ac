package useragent

import (
	"fmt"
	"math/rand"
)

// Generator produces realistic User-Agent strings by combining OS platform
// identifiers, engine builds and browser versions. Every browser tab gets a
// fresh string, which keeps fingerprints from repeating across contexts.
type Generator struct {
	rng *rand.Rand
}

var osPlatforms = map[string][]string{
	"win": {
		"Windows NT 10.0; Win64; x64",
		"Windows NT 11.0; Win64; x64",
	},
	"mac": {
		"Macintosh; Intel Mac OS X 10_15_7",
		"Macintosh; Intel Mac OS X 11_6",
		"Macintosh; Intel Mac OS X 12_6",
		"Macintosh; Intel Mac OS X 13_5",
		"Macintosh; Intel Mac OS X 14_2",
	},
	"linux": {
		"X11; Linux x86_64",
		"X11; Ubuntu; Linux x86_64",
		"X11; Fedora; Linux x86_64",
	},
}

var (
	chromeVersions  = []int{120, 121, 122, 123, 124, 125}
	firefoxVersions = []int{121, 122, 123, 124, 125}
)

// Safari versions paired with their WebKit builds.
var safariVersions = [][2]string{
	{"17.0", "605.1.15"},
	{"17.1", "605.1.15"},
	{"17.2", "605.1.15"},
	{"17.3", "605.1.15"},
}

func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

// Random constructs a fresh User-Agent string. Browser choice is weighted per
// platform: mac gets chrome/safari/firefox at 40/40/20, win and linux get
// chrome/firefox at 70/30.
func (g *Generator) Random() string {
	platforms := []string{"win", "mac", "linux"}
	platform := platforms[g.rng.Intn(len(platforms))]

	roll := g.rng.Intn(100)
	if platform == "mac" {
		switch {
		case roll < 40:
			return g.chrome(platform)
		case roll < 80:
			return g.safari()
		default:
			return g.firefox(platform)
		}
	}

	if roll < 70 {
		return g.chrome(platform)
	}
	return g.firefox(platform)
}

func (g *Generator) pickOS(platform string) string {
	opts := osPlatforms[platform]
	return opts[g.rng.Intn(len(opts))]
}

func (g *Generator) chrome(platform string) string {
	osStr := g.pickOS(platform)
	version := chromeVersions[g.rng.Intn(len(chromeVersions))]
	// Major.0.Build.Patch with a randomized build number
	build := 5000 + g.rng.Intn(1001)
	patch := 100 + g.rng.Intn(101)

	return fmt.Sprintf(
		"Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.%d.%d Safari/537.36",
		osStr, version, build, patch,
	)
}

func (g *Generator) firefox(platform string) string {
	osStr := g.pickOS(platform)
	version := firefoxVersions[g.rng.Intn(len(firefoxVersions))]

	return fmt.Sprintf("Mozilla/5.0 (%s; rv:%d.0) Gecko/20100101 Firefox/%d.0", osStr, version, version)
}

func (g *Generator) safari() string {
	osStr := g.pickOS("mac")
	pair := safariVersions[g.rng.Intn(len(safariVersions))]

	return fmt.Sprintf(
		"Mozilla/5.0 (%s) AppleWebKit/%s (KHTML, like Gecko) Version/%s Safari/%s",
		osStr, pair[1], pair[0], pair[1],
	)
}
