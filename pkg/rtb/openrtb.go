// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rtb adapts OpenRTB 2.x bid requests onto the exchange's native
// request model and renders decision results back as bid responses.
package rtb

import (
	"errors"
	"fmt"

	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/adxyz/exchange/core"
	"github.com/adxyz/exchange/pkg/engine"
	"github.com/adxyz/exchange/pkg/vast"
)

var (
	ErrNoImpression = errors.New("bid request carries no impression")
	ErrNoDevice     = errors.New("bid request carries no device")
)

// FromBidRequest maps the first impression of an OpenRTB bid request onto
// a native request. Multi-impression requests decide on the first
// impression only.
func FromBidRequest(br *openrtb2.BidRequest) (*core.Request, error) {
	if len(br.Imp) == 0 {
		return nil, ErrNoImpression
	}
	if br.Device == nil {
		return nil, ErrNoDevice
	}
	imp := br.Imp[0]

	req := &core.Request{
		RequestID: br.ID,
		DeviceID:  br.Device.IFA,
		Platform:  platformOf(br.Device),
	}
	if req.DeviceID == "" {
		req.DeviceID = br.Device.DIDSHA1
	}
	if br.App != nil {
		req.AppID = br.App.ID
		req.AppName = br.App.Name
	}
	if imp.Banner != nil {
		if imp.Banner.W != nil {
			req.Size.W = int(*imp.Banner.W)
		}
		if imp.Banner.H != nil {
			req.Size.H = int(*imp.Banner.H)
		}
	} else if imp.Video != nil {
		if imp.Video.W != nil {
			req.Size.W = int(*imp.Video.W)
		}
		if imp.Video.H != nil {
			req.Size.H = int(*imp.Video.H)
		}
	}
	return req, nil
}

func platformOf(d *openrtb2.Device) core.Platform {
	switch d.OS {
	case "iOS", "ios", "IOS":
		return core.PlatformIOS
	case "Android", "android", "ANDROID":
		return core.PlatformAndroid
	default:
		return core.PlatformWeb
	}
}

// ToBidResponse renders a decision result as an OpenRTB bid response.
// Rejected or organically routed impressions come back as a no-bid with
// the reason carried in the response extension-free NBR-less body: an
// empty seat list is the wire signal for no fill.
func ToBidResponse(br *openrtb2.BidRequest, res *engine.Result) *openrtb2.BidResponse {
	resp := &openrtb2.BidResponse{
		ID:  br.ID,
		Cur: "USD",
	}
	if res == nil || res.Status != engine.StatusAccepted {
		return resp
	}

	bid := openrtb2.Bid{
		ID: res.RequestID,
		// Second-price clearing: the winner pays the cleared price,
		// not its submitted bid.
		Price: res.ClearedPrice,
	}
	if len(br.Imp) > 0 {
		imp := br.Imp[0]
		bid.ImpID = imp.ID
		if imp.Video != nil {
			bid.AdM = videoMarkup(imp, res)
		}
	}
	resp.SeatBid = []openrtb2.SeatBid{{
		Seat: res.Winner,
		Bid:  []openrtb2.Bid{bid},
	}}
	return resp
}

// videoMarkup renders the VAST document for a video fill. A failed render
// degrades to an empty AdM rather than losing the fill.
func videoMarkup(imp openrtb2.Imp, res *engine.Result) string {
	p := vast.Placement{
		RequestID:    res.RequestID,
		Winner:       res.Winner,
		ClearedPrice: res.ClearedPrice,
		MediaURL:     fmt.Sprintf("https://cdn.adxyz.io/creatives/%s.mp4", res.Winner),
	}
	if imp.Video.W != nil {
		p.Width = int(*imp.Video.W)
	}
	if imp.Video.H != nil {
		p.Height = int(*imp.Video.H)
	}
	if imp.Video.MaxDuration > 0 {
		p.DurationSec = int(imp.Video.MaxDuration)
	}
	doc, err := vast.Build(p)
	if err != nil {
		return ""
	}
	return string(doc)
}
