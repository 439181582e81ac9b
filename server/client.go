// Package server is the client for the remote registration service.
//
// A Client owns one framed TCP connection. It is used by a single
// sequential caller: synchronous calls push one request and pop exactly one
// response, while registration is pipelined with RequestRegistration and
// RegistrationResult.
package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/justapithecus/canv/ipc"
	"github.com/justapithecus/canv/log"
	"github.com/justapithecus/canv/types"
)

// Options configures a client connection.
type Options struct {
	// Timeout bounds every send and receive. Zero selects ipc.DefaultTimeout.
	Timeout time.Duration
	// Logger receives client diagnostics. Nil means no logging.
	Logger *log.Logger
}

// VersionInfo is the service build identification.
type VersionInfo struct {
	URL      string `json:"url"`
	Branch   string `json:"branch"`
	Revision string `json:"revision"`
}

// Result is the outcome of one registration. Exactly one of Camera and Err
// is set.
type Result struct {
	FrameID int64
	// FOM is the figure of merit; -1 when the registration failed.
	FOM    float64
	Camera *types.Camera
	Err    string
}

// Failed reports whether the service rejected the frame.
func (r *Result) Failed() bool { return r.Camera == nil }

// Client talks to one registration service.
type Client struct {
	conn   *ipc.Conn
	url    string
	proc   *managedProcess
	logger *log.Logger
	closed bool
}

// Dial connects to a running service at addr (host:port).
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if tcp, ok := nc.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	c := &Client{
		conn:   ipc.NewConn(nc, opts.Timeout),
		url:    "tcp://" + addr,
		logger: logger,
	}
	logger.Debug("connected to registration service", map[string]any{
		"url": c.url,
	})
	return c, nil
}

// HostPort joins host and port into a dial address.
func HostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// URL returns the service address as tcp://host:port.
func (c *Client) URL() string { return c.url }

// Managed reports whether the client owns the service process.
func (c *Client) Managed() bool { return c.proc != nil }

// SetTimeout changes the per-call receive timeout.
func (c *Client) SetTimeout(d time.Duration) { c.conn.SetTimeout(d) }

// QueryVersion asks the service for its build identification.
func (c *Client) QueryVersion() (*VersionInfo, error) {
	resp, err := c.call(&types.VersionRequest{})
	if err != nil {
		return nil, err
	}
	v, ok := resp.(*types.VersionResponse)
	if !ok {
		return nil, unexpected(types.KindVersionResponse, resp)
	}
	return &VersionInfo{URL: c.url, Branch: v.Branch, Revision: v.Revision}, nil
}

// OpenStream opens a registration stream against the given reference
// datasets and returns its id.
func (c *Client) OpenStream(references []string) (int64, error) {
	refs := append([]string{}, references...)
	resp, err := c.call(&types.OpenStreamRequest{ReferenceDatasets: refs})
	if err != nil {
		return 0, err
	}
	v, ok := resp.(*types.OpenStreamResponse)
	if !ok {
		return 0, unexpected(types.KindOpenStreamResponse, resp)
	}
	return v.StreamID, nil
}

// QueryReferences lists the reference datasets a stream is configured with.
func (c *Client) QueryReferences(streamID int64) ([]string, error) {
	resp, err := c.call(&types.ListReferenceDatasetsRequest{StreamID: streamID})
	if err != nil {
		return nil, err
	}
	v, ok := resp.(*types.ListReferenceDatasetsResponse)
	if !ok {
		return nil, unexpected(types.KindListReferenceDatasetsResponse, resp)
	}
	return v.ReferenceDatasets, nil
}

// RequestRegistration submits one frame for registration without waiting
// for the result. It returns ErrEncoding, and sends nothing, when the camera
// lacks required fields.
func (c *Client) RequestRegistration(streamID, frameID int64, cam *types.Camera, img image.Image) error {
	if c.closed {
		return ErrClosed
	}
	if err := cam.Complete(); err != nil {
		return fmt.Errorf("%w: frame %d: %w", ErrEncoding, frameID, err)
	}
	if img == nil {
		return fmt.Errorf("%w: frame %d: missing image", ErrEncoding, frameID)
	}

	req := &types.RegistrationRequest{
		StreamID: streamID,
		FrameID:  frameID,
		Frame: types.WireFrame{
			Metadata:       toWire(cam),
			GrayscaleImage: grayscale(img),
		},
	}
	return c.push(req)
}

// RegistrationResult pops one registration outcome. On timeout it returns
// an error for which ipc.IsTimeout is true; the client stays usable.
func (c *Client) RegistrationResult() (*Result, error) {
	resp, err := c.pop()
	if err != nil {
		return nil, err
	}
	switch v := resp.(type) {
	case *types.RegistrationResult:
		return &Result{
			FrameID: v.FrameID,
			FOM:     v.FigureOfMerit,
			Camera:  fromWire(&v.Metadata),
		}, nil
	case *types.RegistrationError:
		return &Result{
			FrameID: v.FrameID,
			FOM:     -1,
			Err:     v.ErrorString,
		}, nil
	default:
		return nil, fmt.Errorf("%w: got %s while waiting for a registration outcome", ErrProtocol, resp.Kind())
	}
}

// Shutdown closes the connection and, for a managed service, stops the
// process. It is safe to call more than once.
func (c *Client) Shutdown() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, err)
	}
	if c.proc != nil {
		if err := c.proc.stop(); err != nil {
			errs = append(errs, err)
		}
	}
	c.logger.Debug("registration service client shut down", map[string]any{
		"url":     c.url,
		"managed": c.proc != nil,
	})
	return errors.Join(errs...)
}

func (c *Client) call(req types.Request) (types.Response, error) {
	if err := c.push(req); err != nil {
		return nil, err
	}
	return c.pop()
}

func (c *Client) push(req types.Request) error {
	if c.closed {
		return ErrClosed
	}
	payload, err := ipc.EncodeRequest(req)
	if err != nil {
		return err
	}
	return c.conn.Send(payload)
}

func (c *Client) pop() (types.Response, error) {
	if c.closed {
		return nil, ErrClosed
	}
	payload, err := c.conn.Receive()
	if err != nil {
		return nil, err
	}
	resp, err := ipc.DecodeResponse(payload)
	if errors.Is(err, ipc.ErrUnknownKind) {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return resp, err
}

func unexpected(want types.MessageKind, got types.Response) error {
	return fmt.Errorf("%w: want %s, got %s", ErrProtocol, want, got.Kind())
}

// toWire converts a complete camera to the wire convention: degrees for
// angles and fields of view, zero for absent lens terms.
func toWire(cam *types.Camera) types.ImageMetadata {
	return types.ImageMetadata{
		Position: types.Point{
			Latitude:  cam.Pos[0],
			Longitude: cam.Pos[1],
			Height:    cam.Pos[2],
		},
		Attitude: types.Attitude{
			Yaw:   degrees(cam.Att[0]),
			Pitch: degrees(cam.Att[1]),
			Roll:  degrees(cam.Att[2]),
		},
		FOV: types.FieldOfView{
			Horizontal: degrees(cam.Lens.HFov),
			Vertical:   degrees(cam.Lens.VFov),
		},
		LensParameters: types.LensParameters{
			K2: types.FloatOr(cam.Lens.K2, 0),
			K3: types.FloatOr(cam.Lens.K3, 0),
			K4: types.FloatOr(cam.Lens.K4, 0),
		},
	}
}

// fromWire converts registered metadata back to the at-rest convention.
// Zero distortion terms are omitted.
func fromWire(m *types.ImageMetadata) *types.Camera {
	lens := &types.Lens{
		HFov: radians(m.FOV.Horizontal),
		VFov: radians(m.FOV.Vertical),
	}
	if k := m.LensParameters.K2; k != 0 {
		lens.K2 = types.Float(k)
	}
	if k := m.LensParameters.K3; k != 0 {
		lens.K3 = types.Float(k)
	}
	if k := m.LensParameters.K4; k != 0 {
		lens.K4 = types.Float(k)
	}
	return &types.Camera{
		Pos:  []float64{m.Position.Latitude, m.Position.Longitude, m.Position.Height},
		Att:  []float64{radians(m.Attitude.Yaw), radians(m.Attitude.Pitch), radians(m.Attitude.Roll)},
		Lens: lens,
	}
}

// grayscale returns the image as tightly packed 8-bit luma rows.
func grayscale(img image.Image) types.GrayscaleImage {
	b := img.Bounds()
	gray, ok := img.(*image.Gray)
	if !ok {
		gray = image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
		b = gray.Bounds()
	}

	w, h := b.Dx(), b.Dy()
	raw := make([]byte, 0, w*h)
	for y := 0; y < h; y++ {
		off := gray.PixOffset(b.Min.X, b.Min.Y+y)
		raw = append(raw, gray.Pix[off:off+w]...)
	}
	return types.GrayscaleImage{Width: w, Height: h, Raw: raw}
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func radians(deg float64) float64 { return deg * math.Pi / 180 }
