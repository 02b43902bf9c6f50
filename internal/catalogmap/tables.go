// Package catalogmap holds the fixed mapping tables: filter normalization,
// the public catalog URL builder, HeyGen template IDs, and Cloudinary
// transformation presets. These are literal, stable tables, not logic.
package catalogmap

import (
	"fmt"
	"net/url"
	"strings"
)

// genreAliases maps any accepted spelling/alias to the canonical URL token.
// Entries are deliberately bidirectional-looking: canonical tokens map to
// themselves so callers never need a separate "is canonical" check.
var genreAliases = map[string]string{
	"action & adventure":  "Action & Adventure",
	"action":              "Action & Adventure",
	"adventure":           "Action & Adventure",
	"animation":           "Animation",
	"comedy":              "Comedy",
	"crime":               "Crime",
	"documentary":         "Documentary",
	"drama":               "Drama",
	"fantasy":             "Fantasy",
	"history":             "History",
	"horror":              "Horror",
	"kids & family":       "Kids & Family",
	"kids":                "Kids & Family",
	"family":              "Kids & Family",
	"made in europe":      "Made in Europe",
	"music & musical":     "Music & Musical",
	"music":               "Music & Musical",
	"musical":             "Music & Musical",
	"mystery & thriller":  "Mystery & Thriller",
	"mystery":             "Mystery & Thriller",
	"thriller":            "Mystery & Thriller",
	"reality tv":          "Reality TV",
	"reality":             "Reality TV",
	"romance":             "Romance",
	"science-fiction":     "Science-Fiction",
	"science fiction":     "Science-Fiction",
	"sci-fi":              "Science-Fiction",
	"sport":               "Sport",
	"war & military":      "War & Military",
	"war":                 "War & Military",
	"military":            "War & Military",
	"western":             "Western",
}

// platformAliases maps a human platform name to its URL token.
var platformAliases = map[string]string{
	"netflix":     "netflix",
	"disney+":     "disney",
	"disney":      "disney",
	"prime video": "amazon",
	"amazon":      "amazon",
	"hbo max":     "hbo",
	"hbo":         "hbo",
	"apple tv+":   "apple",
	"apple":       "apple",
	"hulu":        "hulu",
	"paramount+":  "paramount",
	"paramount":   "paramount",
}

// contentTypeAliases maps a human content-type name to its URL token.
var contentTypeAliases = map[string]string{
	"film":   "Film",
	"movie":  "Film",
	"série":  "Serie",
	"series": "Serie",
	"tv show": "Serie",
}

// NormalizeGenre resolves a genre string through the alias table. It returns
// false if the input does not resolve — callers should treat that as
// a configuration error.
func NormalizeGenre(raw string) (string, bool) {
	v, ok := genreAliases[strings.ToLower(strings.TrimSpace(raw))]
	return v, ok
}

// NormalizePlatform resolves a platform string through the alias table.
func NormalizePlatform(raw string) (string, bool) {
	v, ok := platformAliases[strings.ToLower(strings.TrimSpace(raw))]
	return v, ok
}

// NormalizeContentType resolves a content-type string through the alias
// table.
func NormalizeContentType(raw string) (string, bool) {
	v, ok := contentTypeAliases[strings.ToLower(strings.TrimSpace(raw))]
	return v, ok
}

// CatalogBaseURL is the public catalog page the screencast invoker targets.
const CatalogBaseURL = "https://streamgank.com/"

// BuildCatalogURL resolves country/genre/platform/content-type into the
// public catalog URL. Country passes through verbatim.
func BuildCatalogURL(country, genreToken, platformToken, contentTypeToken string) string {
	q := url.Values{}
	q.Set("country", country)
	q.Set("genres", genreToken)
	q.Set("platforms", platformToken)
	q.Set("type", contentTypeToken)
	return CatalogBaseURL + "?" + q.Encode()
}

// HeyGen template IDs keyed by genre (canonical URL token); unknown genres
// use DefaultTemplateID.
var heygenTemplates = map[string]string{
	"Horror": "e2ad0e5c7e71483991536f5c93594e42",
	"Comedy": "15d9eadcb46a45dbbca1834aa0a23ede",
	"Action & Adventure": "e44b139a1b94446a997a7f2ac5ac4178",
}

// DefaultTemplateID is used for genres absent from heygenTemplates.
const DefaultTemplateID = "cc6718c5363e42b282a123f99b94b335"

// HeyGenTemplateID resolves a canonical genre token to a template ID.
func HeyGenTemplateID(genreToken string) string {
	if id, ok := heygenTemplates[genreToken]; ok {
		return id
	}
	return DefaultTemplateID
}

// CloudinaryPreset names a Cloudinary named transformation.
type CloudinaryPreset struct {
	Name         string
	Width        int
	Height       int
	Crop         string
	Gravity      string
	VideoBitRate string
	Background   string // "" | "blur" | "black"
}

// Cloudinary transformation presets. vertical_portrait_fill is the
// default used for movie clips.
var cloudinaryPresets = map[string]CloudinaryPreset{
	"vertical_portrait_fill": {Name: "vertical_portrait_fill", Width: 1080, Height: 1920, Crop: "fill", Gravity: "center", VideoBitRate: "3000k"},
	"fit":                    {Name: "fit", Width: 1080, Height: 1920, Crop: "fit", Background: "black"},
	"pad":                    {Name: "pad", Width: 1080, Height: 1920, Crop: "pad", Background: "blur"},
	"scale":                  {Name: "scale", Width: 1080, Height: 1920, Crop: "scale"},
}

// CloudinaryTransformation returns the named preset, or an error naming the
// unknown preset.
func CloudinaryTransformation(name string) (CloudinaryPreset, error) {
	p, ok := cloudinaryPresets[name]
	if !ok {
		return CloudinaryPreset{}, fmt.Errorf("unknown cloudinary preset: %s", name)
	}
	return p, nil
}

// PlatformBadgeColors gives a hex color per platform token, used by the
// poster compositor for the platform badge.
var PlatformBadgeColors = map[string]string{
	"netflix":   "#E50914",
	"disney":    "#113CCF",
	"amazon":    "#00A8E1",
	"hbo":       "#9B1AE3",
	"apple":     "#A2AAAD",
	"hulu":      "#1CE783",
	"paramount": "#0064FF",
}
