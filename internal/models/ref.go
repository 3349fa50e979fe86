package models

import "encoding/json"

// The backend is loose about references: the same field may arrive as a bare
// id string or as an embedded object depending on the endpoint. Both shapes
// are normalized here, at the decode boundary, so nothing downstream has to
// branch on shape.

// UserRef is a normalized reference to a user (customer, technician or
// supplier).
type UserRef struct {
	ID    string `bson:"id" json:"id"`
	Name  string `bson:"name,omitempty" json:"name,omitempty"`
	Phone string `bson:"phone,omitempty" json:"phone,omitempty"`
}

// UnmarshalJSON accepts either a bare id string or an embedded object.
func (r *UserRef) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*r = UserRef{ID: id}
		return nil
	}
	var obj struct {
		ID    string `json:"id"`
		AltID string `json:"_id"`
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.ID == "" {
		obj.ID = obj.AltID
	}
	*r = UserRef{ID: obj.ID, Name: obj.Name, Phone: obj.Phone}
	return nil
}

// VehicleRef is a normalized reference to a vehicle.
type VehicleRef struct {
	ID    string `bson:"id" json:"id"`
	Make  string `bson:"make,omitempty" json:"make,omitempty"`
	Model string `bson:"model,omitempty" json:"model,omitempty"`
	Year  int    `bson:"year,omitempty" json:"year,omitempty"`
	Plate string `bson:"plate,omitempty" json:"plate,omitempty"`
}

// UnmarshalJSON accepts either a bare id string or an embedded object.
func (r *VehicleRef) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*r = VehicleRef{ID: id}
		return nil
	}
	var obj struct {
		ID    string `json:"id"`
		AltID string `json:"_id"`
		Make  string `json:"make"`
		Model string `json:"model"`
		Year  int    `json:"year"`
		Plate string `json:"plate"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.ID == "" {
		obj.ID = obj.AltID
	}
	*r = VehicleRef{ID: obj.ID, Make: obj.Make, Model: obj.Model, Year: obj.Year, Plate: obj.Plate}
	return nil
}
