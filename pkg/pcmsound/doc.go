// Package pcmsound plays a continuous stream of 16-bit PCM fed by the caller
// in arbitrary chunks.
//
// A Controller opens a session with Setup, after which Feed queues buffers
// for a dedicated playback goroutine that writes them to a DeviceOutput at
// the device's own pace. When the audio still buffered drops to the feed
// threshold, the OnFeedSamples callback fires once, asking for more. Feeding
// again re-arms the notification. Release tears the session down.
//
//	ctrl, err := pcmsound.NewController(pcmsound.ControllerOptions{
//		Config: cfg,
//		OnFeedSamples: func(remaining int) {
//			// feed more audio
//		},
//	})
//	if err != nil {
//		return err
//	}
//	defer ctrl.Close()
//
//	if err := ctrl.Setup(ctx, pcmsound.SetupRequest{SampleRate: 16000, NumChannels: 1}); err != nil {
//		return err
//	}
//	_ = ctrl.Feed(samples)
//
// Output goes through oto, PulseAudio (Linux), or a mock device selected
// with the device.backend setting.
package pcmsound
