package fleet

import (
	"encoding/json"

	"drone-fleet/internal/drone"
	domainerrors "drone-fleet/internal/errors"
	"drone-fleet/internal/mission"
	"drone-fleet/internal/report"
)

const (
	TypeRegister        = "fromDrone:register"
	TypeUpdate          = "fromDrone:update"
	TypeGotFlightPermit = "fromDrone:gotFlightPermit"
	TypeMissionReport   = "fromDrone:missionRaport"
	TypeCameFromMission = "fromDrone:cameFromMission"

	TypeDepart          = "toDrone:depart"
	TypeGetFlightPermit = "toDrone:getFlightPermit"
	TypeNearbyDrones    = "toDrone:nearbyDronesUpdate"
)

// Inbound is a message received from a drone. The set of implementations is
// closed: RegisterMsg, UpdateMsg, GotFlightPermitMsg, MissionReportMsg,
// CameFromMissionMsg and UnknownMsg.
type Inbound interface {
	inbound()
}

type RegisterMsg struct {
	Drone *drone.Drone
}

type UpdateMsg struct {
	Drone *drone.Drone
}

type GotFlightPermitMsg struct{}

type MissionReportMsg struct {
	Report *report.SubmitPayload
}

type CameFromMissionMsg struct{}

// UnknownMsg carries a type tag the coordinator does not handle.
type UnknownMsg struct {
	Type string
}

func (RegisterMsg) inbound()        {}
func (UpdateMsg) inbound()          {}
func (GotFlightPermitMsg) inbound() {}
func (MissionReportMsg) inbound()   {}
func (CameFromMissionMsg) inbound() {}
func (UnknownMsg) inbound()         {}

// envelope is the wire shape of an inbound message. Register and update carry
// the drone record under "drone" (SDK) or "droneData"; reports come under
// "raport" or "report".
type envelope struct {
	Type      string          `json:"type"`
	Drone     json.RawMessage `json:"drone"`
	DroneData json.RawMessage `json:"droneData"`
	Raport    json.RawMessage `json:"raport"`
	Report    json.RawMessage `json:"report"`
}

func firstNonEmpty(raws ...json.RawMessage) json.RawMessage {
	for _, r := range raws {
		if len(r) > 0 && string(r) != "null" {
			return r
		}
	}
	return nil
}

// ParseInbound decodes one frame. A frame that is not a JSON object is a
// PROTOCOL error; a known type with a bad payload is a VALIDATION error. An
// unknown type is not an error and comes back as UnknownMsg.
func ParseInbound(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, domainerrors.Wrap(domainerrors.ErrProtocol, "malformed message", err)
	}

	switch env.Type {
	case TypeRegister, TypeUpdate:
		d, err := drone.ParseRecord(firstNonEmpty(env.Drone, env.DroneData))
		if err != nil {
			return nil, err
		}
		if env.Type == TypeRegister {
			return RegisterMsg{Drone: d}, nil
		}
		return UpdateMsg{Drone: d}, nil
	case TypeGotFlightPermit:
		return GotFlightPermitMsg{}, nil
	case TypeMissionReport:
		p, err := report.ParseSubmit(firstNonEmpty(env.Raport, env.Report))
		if err != nil {
			return nil, err
		}
		return MissionReportMsg{Report: p}, nil
	case TypeCameFromMission:
		return CameFromMissionMsg{}, nil
	default:
		return UnknownMsg{Type: env.Type}, nil
	}
}

// Event is a command addressed to a session from inside the process.
type Event interface {
	event()
}

// DepartEvent tells an idle drone to leave for a mission.
type DepartEvent struct {
	Mission mission.Details
}

// RequestFlightPermitEvent asks the drone to obtain a flight permit.
type RequestFlightPermitEvent struct{}

func (DepartEvent) event()              {}
func (RequestFlightPermitEvent) event() {}

// Outbound is a message sent to a drone. Implementations marshal to the
// drone wire format.
type Outbound interface {
	MessageType() string
}

type DepartCommand struct {
	Type           string          `json:"type"`
	MissionDetails mission.Details `json:"missionDetails"`
}

func NewDepartCommand(details mission.Details) DepartCommand {
	return DepartCommand{Type: TypeDepart, MissionDetails: details}
}

type FlightPermitRequest struct {
	Type string `json:"type"`
}

func NewFlightPermitRequest() FlightPermitRequest {
	return FlightPermitRequest{Type: TypeGetFlightPermit}
}

// NearbyDrone is one entry of a proximity advisory. FrequencyHz is the
// receiving drone's own communication frequency.
type NearbyDrone struct {
	ID          string   `json:"id"`
	DistanceKm  float64  `json:"distanceKm"`
	FrequencyHz *float64 `json:"frequencyHz,omitempty"`
}

type NearbyDronesUpdate struct {
	Type string        `json:"type"`
	Data []NearbyDrone `json:"data"`
}

func NewNearbyDronesUpdate(data []NearbyDrone) NearbyDronesUpdate {
	if data == nil {
		data = []NearbyDrone{}
	}
	return NearbyDronesUpdate{Type: TypeNearbyDrones, Data: data}
}

func (m DepartCommand) MessageType() string       { return m.Type }
func (m FlightPermitRequest) MessageType() string { return m.Type }
func (m NearbyDronesUpdate) MessageType() string  { return m.Type }
