package attendance

import "time"

// Record is one student's attendance in one slot on one date. The
// (SlotID, StudentID, Date) triple identifies it.
type Record struct {
	ID        string    `json:"id"`
	SlotID    string    `json:"timetableSlotId"`
	StudentID string    `json:"studentId"`
	Date      Date      `json:"date"`
	Status    Status    `json:"status"`
	MarkedBy  string    `json:"markedBy"`
	Remarks   string    `json:"remarks"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Display fields, left empty when the referenced entity is gone.
	Subject      string `json:"subject,omitempty"`
	StudentName  string `json:"studentName,omitempty"`
	MarkedByName string `json:"markedByName,omitempty"`
}

// Key returns the record's business key.
func (r Record) Key() Key {
	return Key{SlotID: r.SlotID, StudentID: r.StudentID, Date: r.Date}
}

// Key is the natural key of a record.
type Key struct {
	SlotID    string
	StudentID string
	Date      Date
}

// MarkInput is a single attendance mark.
type MarkInput struct {
	SlotID    string `json:"timetableSlotId" binding:"required"`
	StudentID string `json:"studentId" binding:"required"`
	Date      Date   `json:"date"`
	Status    string `json:"status" binding:"required"`
	Remarks   string `json:"remarks" binding:"max=500"`
}
