package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPlatform(t *testing.T) {
	tests := []struct {
		name string
		html string
		want Platform
	}{
		{"entrata", `<script src="https://cdn.entratacdn.com/app.js"></script>`, PlatformEntrata},
		{"rentcafe", `<a href="/floorplans.aspx">Floor Plans</a>`, PlatformRentCafe},
		{"realpage", `<link href="https://assets.g5marketingcloud.com/x.css">`, PlatformRealPage},
		{"wordpress", `<link href="/wp-content/themes/novel/style.css">`, PlatformWordPress},
		{"entrata inside wordpress", `<link href="/wp-content/a.css"><iframe src="https://x.entrata.com/">`, PlatformEntrata},
		{"unknown", `<html><body>hello</body></html>`, PlatformUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyPlatform(tt.html))
		})
	}
}

func TestFloorPlansPath(t *testing.T) {
	assert.Equal(t, "/floorplans", FloorPlansPath(PlatformEntrata))
	assert.Equal(t, "/floorplans.aspx", FloorPlansPath(PlatformRentCafe))
	assert.Equal(t, "/floor-plans", FloorPlansPath(PlatformRealPage))
	assert.Equal(t, "/floor-plans/", FloorPlansPath(PlatformWordPress))
	assert.Equal(t, "", FloorPlansPath(PlatformUnknown))
}
