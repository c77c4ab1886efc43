package scorm

import (
	"encoding/xml"
	"sort"
)

type manifest struct {
	XMLName        xml.Name      `xml:"manifest"`
	Identifier     string        `xml:"identifier,attr"`
	Xmlns          string        `xml:"xmlns,attr"`
	XmlnsAdlcp     string        `xml:"xmlns:adlcp,attr"`
	XmlnsXsi       string        `xml:"xmlns:xsi,attr"`
	XmlnsLom       string        `xml:"xmlns:lom,attr"`
	SchemaLocation string        `xml:"xsi:schemaLocation,attr"`
	Metadata       metadata      `xml:"metadata"`
	Organizations  organizations `xml:"organizations"`
	Resources      []resource    `xml:"resources>resource"`
}

type metadata struct {
	Schema        string `xml:"schema"`
	SchemaVersion string `xml:"schemaversion"`
	Lom           lom    `xml:"lom:lom"`
}

type lom struct {
	Title        string `xml:"lom:general>lom:title>lom:langstring"`
	LearningTime string `xml:"lom:educational>lom:typicallearningtime>lom:datetime"`
}

type organizations struct {
	Default      string       `xml:"default,attr"`
	Organization organization `xml:"organization"`
}

type organization struct {
	Identifier string `xml:"identifier,attr"`
	Title      string `xml:"title"`
	Item       item   `xml:"item"`
}

type item struct {
	Identifier    string `xml:"identifier,attr"`
	IdentifierRef string `xml:"identifierref,attr"`
	Title         string `xml:"title"`
}

type resource struct {
	Identifier string `xml:"identifier,attr"`
	Type       string `xml:"type,attr"`
	ScormType  string `xml:"adlcp:scormtype,attr"`
	Href       string `xml:"href,attr"`
	Files      []file `xml:"file"`
}

type file struct {
	Href string `xml:"href,attr"`
}

const (
	organizationID = "quiz_organization"
	resourceID     = "resource"
)

// buildManifest renders a SCORM 1.2 manifest with a single SCO. publicFiles
// are the names found under res/public/ after staging.
func buildManifest(quizID, title string, publicFiles []string) ([]byte, error) {
	if title == "" {
		title = quizID
	}
	names := append([]string(nil), publicFiles...)
	sort.Strings(names)

	files := []file{{Href: "res/index.js"}, {Href: "res/index.html"}}
	for _, name := range names {
		files = append(files, file{Href: "res/public/" + name})
	}

	m := manifest{
		Identifier:     "MANIFEST-" + quizID,
		Xmlns:          "http://www.imsproject.org/xsd/imscp_rootv1p1p2",
		XmlnsAdlcp:     "http://www.adlnet.org/xsd/adlcp_rootv1p2",
		XmlnsXsi:       "http://www.w3.org/2001/XMLSchema-instance",
		XmlnsLom:       "http://www.imsglobal.org/xsd/imsmd_rootv1p2p1",
		SchemaLocation: "http://www.imsproject.org/xsd/imscp_rootv1p1p2 imscp_rootv1p1p2.xsd http://www.imsglobal.org/xsd/imsmd_rootv1p2p1 imsmd_rootv1p2p1.xsd http://www.adlnet.org/xsd/adlcp_rootv1p2 adlcp_rootv1p2.xsd",
		Metadata: metadata{
			Schema:        "ADL SCORM",
			SchemaVersion: "1.2",
			Lom:           lom{Title: title, LearningTime: "01:00:00"},
		},
		Organizations: organizations{
			Default: organizationID,
			Organization: organization{
				Identifier: organizationID,
				Title:      title,
				Item: item{
					Identifier:    "ITEM-" + quizID,
					IdentifierRef: resourceID,
					Title:         title,
				},
			},
		},
		Resources: []resource{{
			Identifier: resourceID,
			Type:       "webcontent",
			ScormType:  "sco",
			Href:       "res/index.html",
			Files:      files,
		}},
	}
	b, err := xml.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), b...), nil
}
