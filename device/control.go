package device

// ResponseKind is the action chosen for a control request.
type ResponseKind uint8

// Control responses. The zero value is a stall so that an unset response
// rejects the request.
const (
	ResponseStall  ResponseKind = iota // Reject with STALL
	ResponseAccept                     // Complete with a zero-length status stage
	ResponseData                       // Send Data in the IN data stage
)

// String returns the response name.
func (k ResponseKind) String() string {
	switch k {
	case ResponseAccept:
		return "accept"
	case ResponseData:
		return "data"
	default:
		return "stall"
	}
}

// Response is the outcome of handling one SETUP packet. Data references a
// descriptor or control buffer; it is never allocated.
type Response struct {
	Kind ResponseKind
	Data []byte
}

// Stall returns a stall response.
func Stall() Response {
	return Response{Kind: ResponseStall}
}

// Accept returns a no-data response.
func Accept() Response {
	return Response{Kind: ResponseAccept}
}

// DataResponse returns a data response truncated to the host's wLength.
func DataResponse(data []byte, wLength uint16) Response {
	if len(data) > int(wLength) {
		data = data[:wLength]
	}
	return Response{Kind: ResponseData, Data: data}
}

// ControlIn sends data as the IN data stage of a control transfer, split
// into packets of at most maxPacket bytes. The transfer ends with a short
// packet; when data is a non-zero multiple of maxPacket and shorter than the
// host requested, a zero-length packet terminates it. Returns the number of
// packets sent.
func ControlIn(data []byte, maxPacket int, requested uint16, write func([]byte) error) (int, error) {
	packets := 0
	for {
		n := len(data)
		if n > maxPacket {
			n = maxPacket
		}
		if err := write(data[:n]); err != nil {
			return packets, err
		}
		packets++
		data = data[n:]

		if n < maxPacket {
			return packets, nil
		}
		if len(data) == 0 {
			if packets*maxPacket < int(requested) {
				if err := write(nil); err != nil {
					return packets, err
				}
				packets++
			}
			return packets, nil
		}
	}
}
