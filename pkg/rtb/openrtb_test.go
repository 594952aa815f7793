// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rtb

import (
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/stretchr/testify/require"

	"github.com/adxyz/exchange/core"
	"github.com/adxyz/exchange/pkg/engine"
)

func i64(v int64) *int64 { return &v }

func bannerRequest() *openrtb2.BidRequest {
	return &openrtb2.BidRequest{
		ID: "br-1",
		Imp: []openrtb2.Imp{{
			ID:     "imp-1",
			Banner: &openrtb2.Banner{W: i64(320), H: i64(50)},
		}},
		App:    &openrtb2.App{ID: "app_001", Name: "News"},
		Device: &openrtb2.Device{IFA: "ifa-123", OS: "Android"},
	}
}

func TestFromBidRequest(t *testing.T) {
	require := require.New(t)

	req, err := FromBidRequest(bannerRequest())
	require.NoError(err)

	require.Equal("br-1", req.RequestID)
	require.Equal("ifa-123", req.DeviceID)
	require.Equal("app_001", req.AppID)
	require.Equal("News", req.AppName)
	require.Equal(core.PlatformAndroid, req.Platform)
	require.Equal(core.Size{W: 320, H: 50}, req.Size)
}

func TestFromBidRequestDeviceFallbacks(t *testing.T) {
	require := require.New(t)

	br := bannerRequest()
	br.Device.IFA = ""
	br.Device.DIDSHA1 = "sha1-abc"
	br.Device.OS = "iOS"

	req, err := FromBidRequest(br)
	require.NoError(err)
	require.Equal("sha1-abc", req.DeviceID)
	require.Equal(core.PlatformIOS, req.Platform)

	br.Device.OS = "Roku"
	req, err = FromBidRequest(br)
	require.NoError(err)
	require.Equal(core.PlatformWeb, req.Platform)
}

func TestFromBidRequestErrors(t *testing.T) {
	require := require.New(t)

	br := bannerRequest()
	br.Imp = nil
	_, err := FromBidRequest(br)
	require.ErrorIs(err, ErrNoImpression)

	br = bannerRequest()
	br.Device = nil
	_, err = FromBidRequest(br)
	require.ErrorIs(err, ErrNoDevice)
}

func TestFromBidRequestVideoSize(t *testing.T) {
	require := require.New(t)

	br := bannerRequest()
	br.Imp[0].Banner = nil
	br.Imp[0].Video = &openrtb2.Video{W: i64(640), H: i64(360)}

	req, err := FromBidRequest(br)
	require.NoError(err)
	require.Equal(core.Size{W: 640, H: 360}, req.Size)
}

func TestToBidResponseNoFill(t *testing.T) {
	require := require.New(t)
	br := bannerRequest()

	// Rejections and organic routing both answer with an empty seat list.
	resp := ToBidResponse(br, &engine.Result{RequestID: "br-1", Status: engine.StatusRejected})
	require.Equal("br-1", resp.ID)
	require.Empty(resp.SeatBid)

	resp = ToBidResponse(br, nil)
	require.Empty(resp.SeatBid)
}

func TestToBidResponseFill(t *testing.T) {
	require := require.New(t)
	br := bannerRequest()

	res := &engine.Result{
		RequestID:    "br-1",
		Status:       engine.StatusAccepted,
		Winner:       "DSP_2",
		BidPrice:     0.5,
		ClearedPrice: 0.255,
	}
	resp := ToBidResponse(br, res)

	require.Len(resp.SeatBid, 1)
	require.Equal("DSP_2", resp.SeatBid[0].Seat)
	require.Len(resp.SeatBid[0].Bid, 1)

	bid := resp.SeatBid[0].Bid[0]
	require.Equal("imp-1", bid.ImpID)
	// The winner pays the cleared price, never its submitted bid.
	require.Equal(0.255, bid.Price)
	require.Empty(bid.AdM)
	require.Equal("USD", resp.Cur)
}

func TestToBidResponseVideoFillCarriesVAST(t *testing.T) {
	require := require.New(t)

	br := bannerRequest()
	br.Imp[0].Banner = nil
	br.Imp[0].Video = &openrtb2.Video{W: i64(640), H: i64(360), MaxDuration: 30}

	res := &engine.Result{
		RequestID:    "br-1",
		Status:       engine.StatusAccepted,
		Winner:       "DSP_1",
		ClearedPrice: 0.42,
	}
	resp := ToBidResponse(br, res)

	adm := resp.SeatBid[0].Bid[0].AdM
	require.Contains(adm, "<VAST")
	require.Contains(adm, `version="4.2"`)
	require.Contains(adm, "DSP_1.mp4")
	require.Contains(adm, "00:00:30")
	require.Contains(adm, "0.4200")
}
