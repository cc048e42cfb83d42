package dialog

type State string

const (
	StateIdle State = "idle"

	// Registro: idioma → contacto → nombre → rol → ubicación
	StateRegLanguage State = "reg_language"
	StateRegPhone    State = "reg_phone"
	StateRegName     State = "reg_name"
	StateRegRole     State = "reg_role"
	StateRegCountry  State = "reg_country"
	StateRegProvince State = "reg_province"
	StateRegZone     State = "reg_zone"

	// Nueva solicitud
	StateReqVehicle     State = "req_vehicle"
	StateReqCargo       State = "req_cargo"
	StateReqDescription State = "req_description"
	StateReqPickup      State = "req_pickup"
	StateReqDropoff     State = "req_dropoff"
	StateReqBudget      State = "req_budget"
	StateReqZone        State = "req_zone"
	StateReqConfirm     State = "req_confirm"

	// Zonas de trabajo del transportista
	StateZonesCountry  State = "zones_country"
	StateZonesProvince State = "zones_province"
	StateZonesToggle   State = "zones_toggle"
)

type Payload map[string]any

type Item struct {
	ChatID  int64
	State   State
	Payload Payload
}
