package transaction

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Key bytes are 0..15: byte 5 is 5 and byte 15 mod 16 is 15.
const fixtureKey = "AAECAwQFBgcICQoLDA0ODw=="

// Frame values: colour 0,0,0 -> 255,0,255; rotation byte -51 (0 degrees);
// curves 1,-1,1,-1 so every time past 1 evaluates to exactly 1.
const fixtureFrameD = "M 0 0 0 L 255 0 255 -51 C 255 0 255 0"

const fixtureAnimationKey = "0100011100"

const fixtureScript = `var x=function(e){return [(e[2], 16),(e[15], 16),(e[15],16),(e[15], 16),(e[15], 16)]}`

// Values below were computed in a browser engine, so they pin the exact
// rounding of the trigonometry and the curve. Key bytes 38 and 24 are 0xa6
// and 0x3e: the target time is 6*14/4096 and the rotation lands on
// 33.22553543540772 degrees.
const (
	browserKey          = "CzBVep/E6Q4zWH2ix+wRNluApcrvFDlePqjN8hc8YYar0PUaP2Smrg=="
	browserFrameD       = "M 1 195 249 L 87 118 62 234 C 13 175 98 214"
	browserScript       = `function s(n){return [(n[31], 16)].concat(k(n[5]),(n[38], 16),t((n[24], 16)))}`
	browserAnimationKey = "000101.D6262FFACDF7A.8C458A3CE368B.8C458A3CE368B.D6262FFACDF7A00"

	// POST /1.1/jot/client_event.json at token time 123456789 with random
	// byte 0x5a.
	browserToken = "WlFqDyDFnrNUaQIn+J22S2wB2v+QtU5jBGTyl6hNZjvc8YqvQGU+/PQVzVsHiUcNGySawuScPMjx4SNQ+wM"
)

func fixtureHome(frames ...string) string {
	if len(frames) == 0 {
		frames = []string{fixtureFrameD}
	}
	return homeWithKey(fixtureKey, frames...)
}

func homeWithKey(key string, frames ...string) string {
	var svgs strings.Builder
	for i, d := range frames {
		fmt.Fprintf(&svgs, `<svg id="loading-x-anim-%d"><g><path d="%s"/></g></svg>`, i, d)
	}
	return `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8"/>
<meta name="twitter-site-verification" content="` + key + `"/>
<script nonce="n">window.__SCRIPTS_LOADED__={};var m={"ondemand.s":"abc123","other":"zz"};</script>
</head>
<body>
<div id="react-root">` + svgs.String() + `</div>
</body>
</html>`
}

type recordingFetcher struct {
	body   string
	err    error
	urls   []string
	header http.Header
}

func (f *recordingFetcher) Fetch(_ context.Context, method, rawURL string, header http.Header) (string, error) {
	f.urls = append(f.urls, method+" "+rawURL)
	f.header = header
	return f.body, f.err
}
