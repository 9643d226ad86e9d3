package types

import "time"

// CheckType identifies the protocol or mechanism a Check probes with.
type CheckType string

const (
	CheckTypeICMP    CheckType = "icmp"
	CheckTypeAgent   CheckType = "agent"
	CheckTypeTCP     CheckType = "tcp"
	CheckTypeSMTP    CheckType = "smtp"
	CheckTypeFTP     CheckType = "ftp"
	CheckTypePOP     CheckType = "pop"
	CheckTypeIMAP    CheckType = "imap"
	CheckTypeNNTP    CheckType = "nntp"
	CheckTypeHTTP    CheckType = "http"
	CheckTypeHTTPS   CheckType = "https"
	CheckTypeSSH     CheckType = "ssh"
	CheckTypeTelnet  CheckType = "telnet"
	CheckTypeLDAP    CheckType = "ldap"
	CheckTypeSNMPv1  CheckType = "snmpv1"
	CheckTypeSNMPv2c CheckType = "snmpv2c"
	CheckTypeSNMPv3  CheckType = "snmpv3"
)

// IsSNMP reports whether the check type is any SNMP variant.
func (t CheckType) IsSNMP() bool {
	return t == CheckTypeSNMPv1 || t == CheckTypeSNMPv2c || t == CheckTypeSNMPv3
}

// IsSNMPv3 reports whether the check requires the SNMPv3 mutual-exclusion
// token (spec.md §4.2 "SNMPv3 restriction").
func (t CheckType) IsSNMPv3() bool {
	return t == CheckTypeSNMPv3
}

// IsICMP reports whether the check is a batched ICMP ping.
func (t CheckType) IsICMP() bool {
	return t == CheckTypeICMP
}

// SNMPCredentials carries the per-version SNMP authentication parameters.
// Only the fields relevant to Version are populated by the rule author; the
// rest are zero.
type SNMPCredentials struct {
	Community       string // v1/v2c
	Username        string // v3
	AuthProtocol    string // v3: MD5, SHA
	AuthPassphrase  string // v3
	PrivacyProtocol string // v3: DES, AES
	PrivacyPassword string // v3
	ContextName     string // v3
	OID             string // object identifier to walk/get
}

// Check is one probe definition belonging to a Rule.
type Check struct {
	DCheckID   string
	Type       CheckType
	Ports      PortRange
	Timeout    time.Duration
	Unique     bool // uniqueness flag: service name used as dnsname key
	SNMP       *SNMPCredentials
	AgentKey   string // AGENT checks: key to request from the agent
	SendString string // protocol-specific probe payload (e.g. expected banner)
}

// Rule describes what IP range to scan with which checks.
type Rule struct {
	DRuleID       string
	Name          string
	Delay         string // may contain an unresolved user macro
	IPRange       IPRangeSpec
	Checks        []Check
	Revision      int64
	UniqueCheckID string // DCheckID of the check flagged Unique, if any
	NextCheck     time.Time
}

// Revision identifies the (druleid, revision) pair the scheduler uses to
// detect configuration changes mid-flight (spec.md §4.5 step 1).
type Revision struct {
	DRuleID  string
	Revision int64
}
