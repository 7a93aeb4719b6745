package models

// UserData is a pair-up recipient as it appears on the wire.
type UserData struct {
	UserPrincipalName string `json:"UserPrincipalName"`
	UserGivenName     string `json:"UserGivenName"`
	UserObjectID      string `json:"UserObjectId"`
}

type PairUpUserData struct {
	Recipient1 UserData `json:"Recipient1"`
	Recipient2 UserData `json:"Recipient2"`
}

// PairUpQueueMessage is the unit of work handed to the downstream pair-up sender.
type PairUpQueueMessage struct {
	PairUpNotificationID string         `json:"PairUpNotificationId"`
	TeamID               string         `json:"TeamId"`
	TeamName             string         `json:"TeamName"`
	PairUpUserData       PairUpUserData `json:"PairUpUserData"`
}

// PairUpBatchMessage carries the full active-user list of one team for one matching round.
type PairUpBatchMessage struct {
	PairUpNotificationID string     `json:"PairUpNotificationId"`
	TeamID               string     `json:"TeamId"`
	TeamName             string     `json:"TeamName"`
	Users                []UserData `json:"Users"`
}

func UserDataFromMapping(m TeamUserMapping) UserData {
	return UserData{
		UserPrincipalName: m.UserPrincipalName,
		UserGivenName:     m.UserGivenName,
		UserObjectID:      m.UserObjectID,
	}
}
