// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vast renders winning video fills as VAST 4.x documents for
// bidders that expect video ad markup in the bid response.
package vast

import (
	"encoding/xml"
	"fmt"
)

// VAST is the document root.
type VAST struct {
	XMLName xml.Name `xml:"VAST"`
	Version string   `xml:"version,attr"`
	Ads     []Ad     `xml:"Ad"`
}

// Ad is one advertisement in the document.
type Ad struct {
	ID     string  `xml:"id,attr"`
	InLine *InLine `xml:"InLine,omitempty"`
}

// InLine carries the creative payload directly.
type InLine struct {
	AdSystem  AdSystem   `xml:"AdSystem"`
	AdTitle   string     `xml:"AdTitle"`
	Creatives []Creative `xml:"Creatives>Creative"`
	Pricing   *Pricing   `xml:"Pricing,omitempty"`
}

// AdSystem identifies the serving exchange.
type AdSystem struct {
	Version string `xml:"version,attr,omitempty"`
	Name    string `xml:",chardata"`
}

// Pricing is the cleared price of the impression.
type Pricing struct {
	Model    string `xml:"model,attr"`
	Currency string `xml:"currency,attr"`
	Value    string `xml:",chardata"`
}

// Creative holds one linear video creative.
type Creative struct {
	ID     string  `xml:"id,attr,omitempty"`
	Linear *Linear `xml:"Linear,omitempty"`
}

// Linear is an in-stream video creative.
type Linear struct {
	Duration   string      `xml:"Duration"`
	MediaFiles []MediaFile `xml:"MediaFiles>MediaFile"`
}

// MediaFile points at one rendition of the creative asset.
type MediaFile struct {
	Delivery string `xml:"delivery,attr"`
	Type     string `xml:"type,attr"`
	Width    int    `xml:"width,attr"`
	Height   int    `xml:"height,attr"`
	URL      string `xml:",cdata"`
}

// Placement is the cleared impression a document is rendered for.
type Placement struct {
	RequestID    string
	Winner       string
	ClearedPrice float64
	Width        int
	Height       int
	MediaURL     string
	DurationSec  int
}

// Build renders a single-ad VAST document for a cleared placement. The
// price uses the CPM model with the second-price cleared amount.
func Build(p Placement) ([]byte, error) {
	duration := p.DurationSec
	if duration <= 0 {
		duration = 15
	}

	doc := VAST{
		Version: "4.2",
		Ads: []Ad{{
			ID: p.RequestID,
			InLine: &InLine{
				AdSystem: AdSystem{Name: "adxyz", Version: "1.0"},
				AdTitle:  fmt.Sprintf("fill by %s", p.Winner),
				Pricing: &Pricing{
					Model:    "cpm",
					Currency: "USD",
					Value:    fmt.Sprintf("%.4f", p.ClearedPrice),
				},
				Creatives: []Creative{{
					ID: p.RequestID + "_1",
					Linear: &Linear{
						Duration: fmt.Sprintf("00:00:%02d", duration),
						MediaFiles: []MediaFile{{
							Delivery: "progressive",
							Type:     "video/mp4",
							Width:    p.Width,
							Height:   p.Height,
							URL:      p.MediaURL,
						}},
					},
				}},
			},
		}},
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
