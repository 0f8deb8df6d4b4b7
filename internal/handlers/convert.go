package handlers

import (
	"fmt"

	"github.com/Mikeyudex/erp-totalmotors/internal/acquisition"
	"github.com/Mikeyudex/erp-totalmotors/internal/capture"
	"github.com/Mikeyudex/erp-totalmotors/internal/imageproc"
	"github.com/Mikeyudex/erp-totalmotors/pkg/media"
)

func toOptions(o imageproc.Options) media.Options {
	return media.Options{
		Width:               o.Width,
		Height:              o.Height,
		Quality:             o.Quality,
		Format:              string(o.Format),
		MaintainAspectRatio: o.MaintainAspectRatio,
		BackgroundColor:     o.BackgroundColor,
	}
}

// fromOverride resolves the override against base, or against the named
// preset when one is given.
func fromOverride(reg *imageproc.Registry, base imageproc.Options, o media.OptionsOverride) (imageproc.Options, error) {
	if o.Preset != "" {
		p, err := reg.Get(o.Preset)
		if err != nil {
			return imageproc.Options{}, err
		}
		base = p.Options()
	}
	ov := imageproc.Overrides{
		Width:               o.Width,
		Height:              o.Height,
		Quality:             o.Quality,
		MaintainAspectRatio: o.MaintainAspectRatio,
		BackgroundColor:     o.BackgroundColor,
	}
	if o.Format != nil {
		f, err := imageproc.ParseFormat(*o.Format)
		if err != nil {
			return imageproc.Options{}, err
		}
		ov.Format = &f
	}
	return ov.Apply(base), nil
}

func toImage(img *imageproc.ProcessedImage) *media.ProcessedImage {
	if img == nil {
		return nil
	}
	return &media.ProcessedImage{
		DataURL:          img.DataURL,
		Format:           string(img.Format),
		OriginalSize:     img.OriginalSize,
		CompressedSize:   img.CompressedSize,
		CompressionRatio: img.CompressionRatio,
		Dimensions:       media.Dimensions{Width: img.Dimensions.Width, Height: img.Dimensions.Height},
		Summary:          img.Summary(),
	}
}

func toCamera(s capture.State) media.CameraState {
	return media.CameraState{
		Status:     string(s.Status),
		DeviceID:   s.DeviceID,
		FacingMode: string(s.FacingMode),
		Error:      s.Error,
	}
}

func toNotice(n acquisition.Notice) media.Notice {
	return media.Notice{
		Severity: string(n.Severity),
		Title:    n.Title,
		Message:  n.Message,
		Retry:    n.Retry,
		Time:     n.Time,
	}
}

func toNotices(ns []acquisition.Notice) []media.Notice {
	out := make([]media.Notice, 0, len(ns))
	for _, n := range ns {
		out = append(out, toNotice(n))
	}
	return out
}

func toPickerState(s acquisition.State, notices []acquisition.Notice) media.PickerState {
	return media.PickerState{
		Open:      s.Open,
		Mode:      string(s.Mode),
		Count:     s.Count,
		Remaining: s.Remaining,
		CanAdd:    s.CanAdd,
		Camera:    toCamera(s.Camera),
		Options:   toOptions(s.Options),
		Notices:   toNotices(notices),
	}
}

func toDevices(ds []capture.Device) []media.Device {
	out := make([]media.Device, 0, len(ds))
	for i, d := range ds {
		label := d.Label
		if d.Degraded() {
			label = fmt.Sprintf("Camera %d", i+1)
		}
		out = append(out, media.Device{DeviceID: d.ID, Label: label})
	}
	return out
}

func toUploadResponse(results []acquisition.Result) media.UploadResponse {
	resp := media.UploadResponse{Results: make([]media.UploadResult, 0, len(results))}
	for _, r := range results {
		ur := media.UploadResult{Name: r.Name, Image: toImage(r.Image)}
		if r.Err != nil {
			ur.Error = r.Err.Error()
		} else {
			resp.Accepted++
		}
		resp.Results = append(resp.Results, ur)
	}
	return resp
}
