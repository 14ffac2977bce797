package domain

// Machine online/offline status values carried by the reference data.
const (
	MachineStatusOffline = 0
	MachineStatusOnline  = 1
)

// Partner is the top of the ownership hierarchy.
type Partner struct {
	ID      int64
	Name    string
	Deleted bool
}

// Merchant belongs to exactly one partner.
type Merchant struct {
	ID        int64
	PartnerID int64
	Name      string
	Deleted   bool
}

// Machine is read-only reference data. Status is authoritative for
// online/offline; transaction gaps are only a secondary signal.
type Machine struct {
	ID               int64
	SerialNo         string
	MerchantID       int64
	Name             string
	Status           int
	Deleted          bool
	TerminateCode    string
	ProductLockCount int
}

// Online reports whether the reference data flags the machine online.
func (m Machine) Online() bool {
	return m.Status == MachineStatusOnline
}
