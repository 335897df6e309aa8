package mqtt

import "strings"

// TopicPrefix is the root of every topic the gateway publishes or
// subscribes to.
const TopicPrefix = "roomgate"

// Topics builds gateway topic names:
//
//	roomgate/system/status                 online/offline (retained, LWT)
//	roomgate/controller/{id}/address       resolved address (retained)
//	roomgate/controller/{id}/dispatch      dispatch outcomes
//	roomgate/command/{id}                  inbound dispatch requests
//	roomgate/response/{id}                 replies to inbound requests
type Topics struct{}

// SystemStatus returns the gateway status topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// ControllerAddress returns the retained address topic for a controller.
func (Topics) ControllerAddress(deviceID string) string {
	return TopicPrefix + "/controller/" + deviceID + "/address"
}

// ControllerDispatch returns the dispatch outcome topic for a controller.
func (Topics) ControllerDispatch(deviceID string) string {
	return TopicPrefix + "/controller/" + deviceID + "/dispatch"
}

// Command returns the inbound command topic for a controller.
func (Topics) Command(deviceID string) string {
	return TopicPrefix + "/command/" + deviceID
}

// AllCommands matches inbound commands for every controller.
func (Topics) AllCommands() string {
	return TopicPrefix + "/command/+"
}

// Response returns the reply topic for an inbound command.
func (Topics) Response(deviceID string) string {
	return TopicPrefix + "/response/" + deviceID
}

// AllControllers matches every controller address and dispatch topic.
func (Topics) AllControllers() string {
	return TopicPrefix + "/controller/#"
}

// CommandDeviceID extracts the controller id from an inbound command topic.
func (Topics) CommandDeviceID(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, TopicPrefix+"/command/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
