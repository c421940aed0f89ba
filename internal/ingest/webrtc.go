// Package ingest terminates WebRTC audio from the browser and feeds the
// decoded microphone samples into a translation session.
package ingest

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/hraban/opus"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"

	"github.com/netfoor/nao-translation-webapp/internal/audio"
)

// SessionDescription is a small DTO so transport handlers never touch webrtc
// types directly.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// SessionController is the slice of the session lifecycle the ingress drives.
type SessionController interface {
	Start(ctx context.Context) error
	Stop()
}

// opusRate is the decode rate for browser opus tracks.
const opusRate = 48000

// Ingress accepts SDP offers and wires each remote audio track to a new
// translation session through a PushSource.
type Ingress struct {
	// NewSession builds the session that will consume this track's audio.
	NewSession func(src *audio.PushSource) SessionController

	// mu guards active; pion fires track and state callbacks on separate
	// goroutines.
	mu     sync.Mutex
	active SessionController
}

func NewIngress(newSession func(src *audio.PushSource) SessionController) *Ingress {
	return &Ingress{NewSession: newSession}
}

// setActive installs the session for the current track, stopping any session
// a previous track started.
func (g *Ingress) setActive(sess SessionController) {
	g.mu.Lock()
	prev := g.active
	g.active = sess
	g.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}
}

// stopActive stops the current session, if any.
func (g *Ingress) stopActive() {
	g.mu.Lock()
	sess := g.active
	g.active = nil
	g.mu.Unlock()
	if sess != nil {
		sess.Stop()
	}
}

// HandleOffer accepts an SDP offer and returns the SDP answer after ICE
// gathering completes.
func (g *Ingress) HandleOffer(ctx context.Context, offer SessionDescription) (SessionDescription, error) {
	if offer.Type != "offer" || offer.SDP == "" {
		return SessionDescription{}, errors.New("invalid offer")
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return SessionDescription{}, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return SessionDescription{}, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))

	peerConnection, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return SessionDescription{}, err
	}

	peerConnection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("ingest: peer connection state: %s", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			g.stopActive()
			_ = peerConnection.Close()
		}
	})
	peerConnection.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Printf("ingest: ICE state: %s", state.String())
	})

	peerConnection.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		log.Printf("ingest: remote audio track: codec=%s", remote.Codec().MimeType)

		dec, err := opus.NewDecoder(opusRate, 1)
		if err != nil {
			log.Printf("ingest: opus decoder: %v", err)
			return
		}
		src := audio.NewPushSource(opusRate)
		sess := g.NewSession(src)
		g.setActive(sess)
		if err := sess.Start(context.Background()); err != nil {
			log.Printf("ingest: session start: %v", err)
			return
		}
		go g.readTrack(remote, dec, src, sess)
	})

	remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := peerConnection.SetRemoteDescription(remoteOffer); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(peerConnection)
	if err := peerConnection.SetLocalDescription(answer); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		_ = peerConnection.Close()
		return SessionDescription{}, ctx.Err()
	}
	local := peerConnection.LocalDescription()
	if local == nil {
		_ = peerConnection.Close()
		return SessionDescription{}, errors.New("no local description")
	}
	return SessionDescription{Type: "answer", SDP: local.SDP}, nil
}

// readTrack decodes RTP opus packets and pushes sample blocks until the track
// ends.
func (g *Ingress) readTrack(remote *webrtc.TrackRemote, dec *opus.Decoder, src *audio.PushSource, sess SessionController) {
	// 40ms at 48k is the largest frame browsers send in practice.
	pcm := make([]int16, 1920)
	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			log.Printf("ingest: RTP read ended: %v", err)
			sess.Stop()
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := dec.Decode(pkt.Payload, pcm)
		if err != nil {
			log.Printf("ingest: opus decode: %v", err)
			continue
		}
		src.Push(audio.FloatFromPCM16(pcm[:n]))
	}
}
