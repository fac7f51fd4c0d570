package generation

import "strings"

// Generation types accepted by the flow.
const (
	TypeStandard  = "standard"
	TypeLifestyle = "lifestyle"
	TypeStudio    = "studio"
	TypeSeasonal  = "seasonal"
	TypeEcommerce = "ecommerce"
)

var typePrefixes = map[string]string{
	TypeLifestyle: "Professional lifestyle product photography, natural lighting, real-world setting, ",
	TypeStudio:    "Professional studio product photography, clean background, perfect lighting, commercial quality, ",
	TypeSeasonal:  "Seasonal themed product photography, atmospheric lighting, contextual elements, ",
	TypeEcommerce: "E-commerce product photography, clean white background, sharp focus, high detail, ",
}

const (
	defaultPrefix  = "Professional product photography, high quality, detailed, "
	ultraQuality   = "ultra high resolution, 8K quality, extremely detailed, "
	regularQuality = "high resolution, sharp focus, detailed, "
	promptSuffix   = ", professional commercial photography, perfect composition, award-winning photography"
)

// GenerationTypes lists the accepted generation types.
func GenerationTypes() []string {
	return []string{TypeStandard, TypeLifestyle, TypeStudio, TypeSeasonal, TypeEcommerce}
}

// IsGenerationType reports whether t is accepted.
func IsGenerationType(t string) bool {
	for _, known := range GenerationTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// EnhancePrompt wraps a user prompt with photography direction for the
// generation type and a quality phrase for the output size.
func EnhancePrompt(prompt, generationType, resolution string) string {
	prefix, ok := typePrefixes[generationType]
	if !ok {
		prefix = defaultPrefix
	}
	quality := regularQuality
	if resolution == "2560x1440" || resolution == "3840x2160" {
		quality = ultraQuality
	}

	var b strings.Builder
	b.Grow(len(prefix) + len(quality) + len(prompt) + len(promptSuffix))
	b.WriteString(prefix)
	b.WriteString(quality)
	b.WriteString(strings.TrimSpace(prompt))
	b.WriteString(promptSuffix)
	return b.String()
}
