package types

// MessageKind discriminates wire envelopes exchanged with the registration service.
type MessageKind string

// Request kinds (client → service).
const (
	KindVersionRequest               MessageKind = "version_request"
	KindOpenStreamRequest            MessageKind = "open_stream_request"
	KindListReferenceDatasetsRequest MessageKind = "list_reference_datasets_request"
	KindRegistrationRequest          MessageKind = "registration_request"
)

// Response kinds (service → client).
const (
	KindVersionResponse               MessageKind = "version_response"
	KindOpenStreamResponse            MessageKind = "open_stream_response"
	KindListReferenceDatasetsResponse MessageKind = "list_reference_datasets_response"
	KindRegistrationResult            MessageKind = "registration_result"
	KindRegistrationError             MessageKind = "registration_error"
)

// Request is a client → service message. The set of implementations is closed.
type Request interface {
	Kind() MessageKind
	isRequest()
}

// Response is a service → client message. The set of implementations is closed.
type Response interface {
	Kind() MessageKind
	isResponse()
}

// VersionRequest asks for the service build identity.
type VersionRequest struct{}

// OpenStreamRequest opens a registration stream against reference datasets.
type OpenStreamRequest struct {
	ReferenceDatasets []string `msgpack:"reference_datasets"`
}

// ListReferenceDatasetsRequest asks which references a stream was opened with.
type ListReferenceDatasetsRequest struct {
	StreamID int64 `msgpack:"stream_id"`
}

// RegistrationRequest submits one frame for asynchronous registration.
type RegistrationRequest struct {
	StreamID int64     `msgpack:"stream_id"`
	FrameID  int64     `msgpack:"frame_id"`
	Frame    WireFrame `msgpack:"frame"`
}

// VersionResponse carries the service build identity.
type VersionResponse struct {
	Branch   string `msgpack:"branch"`
	Revision string `msgpack:"revision"`
}

// OpenStreamResponse carries the new stream's identifier.
type OpenStreamResponse struct {
	StreamID int64 `msgpack:"stream_id"`
}

// ListReferenceDatasetsResponse lists a stream's reference datasets.
type ListReferenceDatasetsResponse struct {
	ReferenceDatasets []string `msgpack:"reference_datasets"`
}

// RegistrationResult is a successful registration of one frame.
type RegistrationResult struct {
	FrameID       int64         `msgpack:"frame_id"`
	FigureOfMerit float64       `msgpack:"figure_of_merit"`
	Metadata      ImageMetadata `msgpack:"metadata"`
}

// RegistrationError reports that one frame could not be registered.
type RegistrationError struct {
	FrameID     int64  `msgpack:"frame_id"`
	ErrorString string `msgpack:"error_string"`
}

// WireFrame pairs frame metadata with its grayscale pixels.
type WireFrame struct {
	Metadata       ImageMetadata  `msgpack:"metadata"`
	GrayscaleImage GrayscaleImage `msgpack:"grayscale_image"`
}

// ImageMetadata is the wire form of a camera pose. Angles are degrees.
type ImageMetadata struct {
	Position       Point          `msgpack:"position"`
	Attitude       Attitude       `msgpack:"attitude"`
	FOV            FieldOfView    `msgpack:"fov"`
	LensParameters LensParameters `msgpack:"lens_parameters"`
}

// Point is a geodetic position.
type Point struct {
	Latitude  float64 `msgpack:"lat"`
	Longitude float64 `msgpack:"lon"`
	Height    float64 `msgpack:"height"`
}

// Attitude is yaw, pitch and roll in degrees.
type Attitude struct {
	Yaw   float64 `msgpack:"yaw"`
	Pitch float64 `msgpack:"pitch"`
	Roll  float64 `msgpack:"roll"`
}

// FieldOfView is the horizontal and vertical field of view in degrees.
type FieldOfView struct {
	Horizontal float64 `msgpack:"horizontal"`
	Vertical   float64 `msgpack:"vertical"`
}

// LensParameters are radial distortion terms; zero means absent.
type LensParameters struct {
	K2 float64 `msgpack:"k2"`
	K3 float64 `msgpack:"k3"`
	K4 float64 `msgpack:"k4"`
}

// GrayscaleImage is 8-bit luminance pixels, row-major, stride == Width.
type GrayscaleImage struct {
	Width  int    `msgpack:"width"`
	Height int    `msgpack:"height"`
	Raw    []byte `msgpack:"raw"`
}

func (*VersionRequest) Kind() MessageKind               { return KindVersionRequest }
func (*OpenStreamRequest) Kind() MessageKind            { return KindOpenStreamRequest }
func (*ListReferenceDatasetsRequest) Kind() MessageKind { return KindListReferenceDatasetsRequest }
func (*RegistrationRequest) Kind() MessageKind          { return KindRegistrationRequest }

func (*VersionResponse) Kind() MessageKind               { return KindVersionResponse }
func (*OpenStreamResponse) Kind() MessageKind            { return KindOpenStreamResponse }
func (*ListReferenceDatasetsResponse) Kind() MessageKind { return KindListReferenceDatasetsResponse }
func (*RegistrationResult) Kind() MessageKind            { return KindRegistrationResult }
func (*RegistrationError) Kind() MessageKind             { return KindRegistrationError }

func (*VersionRequest) isRequest()               {}
func (*OpenStreamRequest) isRequest()            {}
func (*ListReferenceDatasetsRequest) isRequest() {}
func (*RegistrationRequest) isRequest()          {}

func (*VersionResponse) isResponse()               {}
func (*OpenStreamResponse) isResponse()            {}
func (*ListReferenceDatasetsResponse) isResponse() {}
func (*RegistrationResult) isResponse()            {}
func (*RegistrationError) isResponse()             {}
