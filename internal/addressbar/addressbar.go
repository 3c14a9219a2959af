// Package addressbar renders the synthetic browser chrome placed above every
// capture, and the composite document that stacks it over the raster.
package addressbar

import (
	"bytes"
	"encoding/base64"
	"html/template"
	"net/url"
)

// Fixed chrome geometry. Height is the sum of both rows.
const (
	Width        = 1200
	TabRowHeight = 40
	NavRowHeight = 44
	Height       = TabRowHeight + NavRowHeight
)

type chromeView struct {
	Width     int
	TabHeight int
	NavHeight int
	TabLabel  string
	Secure    bool
	Host      string
	Rest      string
	Raw       string
	Parsed    bool
}

type compositeView struct {
	Width        int
	Height       int
	ChromeHeight int
	Chrome       template.HTML
	ImageSrc     template.URL
	ImageHeight  int
}

var chromeTmpl = template.Must(template.New("chrome").Parse(`<div class="bs-chrome" style="width:{{.Width}}px;height:{{.TabHeight}}px;background:#dee1e6;display:flex;align-items:flex-end;padding-left:8px;box-sizing:border-box;font-family:Segoe UI,Apple SD Gothic Neo,Malgun Gothic,sans-serif;">` +
	`<div style="width:240px;height:32px;background:#fff;border-radius:8px 8px 0 0;display:flex;align-items:center;padding:0 12px;box-sizing:border-box;font-size:12px;color:#202124;overflow:hidden;white-space:nowrap;">{{.TabLabel}}</div>` +
	`</div>` +
	`<div class="bs-nav" style="width:{{.Width}}px;height:{{.NavHeight}}px;background:#fff;display:flex;align-items:center;padding:0 12px;box-sizing:border-box;border-bottom:1px solid #dadce0;font-family:Segoe UI,Apple SD Gothic Neo,Malgun Gothic,sans-serif;">` +
	`<div style="width:96px;color:#5f6368;font-size:16px;letter-spacing:14px;">&#8592;&#8594;&#8635;</div>` +
	`<div style="flex:1;height:32px;background:#f1f3f4;border-radius:16px;display:flex;align-items:center;padding:0 16px;font-size:14px;overflow:hidden;white-space:nowrap;">` +
	`{{if .Parsed}}{{if .Secure}}<span style="color:#5f6368;margin-right:8px;">&#128274;</span>{{end}}<span style="color:#202124;">{{.Host}}</span><span style="color:#5f6368;">{{.Rest}}</span>` +
	`{{else}}<span style="color:#202124;">{{.Raw}}</span>{{end}}` +
	`</div></div>`))

var compositeTmpl = template.Must(template.New("composite").Parse(`<!DOCTYPE html>` +
	`<html><head><meta charset="utf-8"><style>html,body{margin:0;padding:0;background:#fff;overflow:hidden;}</style></head>` +
	`<body style="width:{{.Width}}px;height:{{.Height}}px;">` +
	`<div style="height:{{.ChromeHeight}}px;overflow:hidden;">{{.Chrome}}</div>` +
	`<img alt="" src="{{.ImageSrc}}" width="{{.Width}}" height="{{.ImageHeight}}" style="display:block;">` +
	`</body></html>`))

// Render returns the chrome markup for rawURL. Unparseable input is shown
// verbatim; Render never fails.
func Render(rawURL string) string {
	view := chromeView{
		Width:     Width,
		TabHeight: TabRowHeight,
		NavHeight: NavRowHeight,
		Raw:       rawURL,
		TabLabel:  rawURL,
	}
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		view.Parsed = true
		view.Secure = u.Scheme == "https"
		view.Host = u.Host
		view.TabLabel = u.Host
		view.Rest = pathOf(u)
	}
	var buf bytes.Buffer
	if err := chromeTmpl.Execute(&buf, view); err != nil {
		return template.HTMLEscapeString(rawURL)
	}
	return buf.String()
}

func pathOf(u *url.URL) string {
	rest := u.EscapedPath()
	if u.RawQuery != "" {
		rest += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		rest += "#" + u.EscapedFragment()
	}
	if rest == "/" {
		return ""
	}
	return rest
}

// Compose builds a full document with the chrome for rawURL stacked over the
// PNG raster, sized Width x (Height + contentHeight).
func Compose(rawURL string, rasterPNG []byte, contentHeight int) string {
	view := compositeView{
		Width:        Width,
		Height:       Height + contentHeight,
		ChromeHeight: Height,
		// #nosec G203 -- Render escapes every interpolated value.
		Chrome:      template.HTML(Render(rawURL)),
		ImageSrc:    template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(rasterPNG)),
		ImageHeight: contentHeight,
	}
	var buf bytes.Buffer
	if err := compositeTmpl.Execute(&buf, view); err != nil {
		return ""
	}
	return buf.String()
}

// CompositeHeight is the total height of a composite for a content region.
func CompositeHeight(contentHeight int) int {
	return Height + contentHeight
}
