package twodee

import (
	"regexp"

	"github.com/beevik/etree"
)

// externalRef matches url(...) references that name another document,
// e.g. url(design.svg#clip1) or url(https://host/a.svg#m).
var externalRef = regexp.MustCompile(`url\(\s*['"]?[^#)'"]+(#[^)'"]+)['"]?\s*\)`)

// Clean prepares an artwork document for rasterization in place: elements
// marked data-no-render="true" are removed, and clip-path and mask
// references into other documents are rewritten to local fragment
// references.
func Clean(doc *etree.Document) {
	for _, el := range doc.FindElements(`//*[@data-no-render='true']`) {
		if p := el.Parent(); p != nil {
			p.RemoveChild(el)
		}
	}
	for _, el := range doc.FindElements("//*") {
		for _, key := range []string{"clip-path", "mask"} {
			if a := el.SelectAttr(key); a != nil {
				a.Value = externalRef.ReplaceAllString(a.Value, "url($1)")
			}
		}
	}
}

// imageHref returns the link of an <image> element.
func imageHref(el *etree.Element) string {
	if href := el.SelectAttrValue("xlink:href", ""); href != "" {
		return href
	}
	return el.SelectAttrValue("href", "")
}
