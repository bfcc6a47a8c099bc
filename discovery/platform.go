package discovery

import "strings"

type Platform string

const (
	PlatformEntrata   Platform = "entrata"
	PlatformRentCafe  Platform = "rentcafe"
	PlatformRealPage  Platform = "realpage"
	PlatformWordPress Platform = "wordpress"
	PlatformUnknown   Platform = "unknown"
)

// signatures are checked in order; the first platform with a hit wins.
// WordPress is last because other platforms are often embedded in WP themes.
var signatures = []struct {
	platform Platform
	markers  []string
}{
	{PlatformEntrata, []string{"entrata.com", "/apartments/module/", "entratacdn"}},
	{PlatformRentCafe, []string{"rentcafe.com", "securecafe.com", "/floorplans.aspx"}},
	{PlatformRealPage, []string{"realpage.com", "g5marketingcloud", "g5-", "/floor-plans?"}},
	{PlatformWordPress, []string{"wp-content/", "wp-json", "wp-includes/"}},
}

var floorPlanPaths = map[Platform]string{
	PlatformEntrata:   "/floorplans",
	PlatformRentCafe:  "/floorplans.aspx",
	PlatformRealPage:  "/floor-plans",
	PlatformWordPress: "/floor-plans/",
}

// ClassifyPlatform looks for path and script signatures in page markup.
func ClassifyPlatform(html string) Platform {
	lower := strings.ToLower(html)
	for _, sig := range signatures {
		for _, m := range sig.markers {
			if strings.Contains(lower, m) {
				return sig.platform
			}
		}
	}
	return PlatformUnknown
}

// FloorPlansPath is the floor plan sub-path a platform serves. Unknown
// platforms return "" so the provider default applies.
func FloorPlansPath(p Platform) string {
	return floorPlanPaths[p]
}
