/*
Package types defines the core data structures of the discovery engine.

This package contains the domain model shared by every other package:
discovery rules and their checks, the scheduler-expanded jobs and tasks that
carry out a rule's IP range, the CheckKey and Result types ResultStore uses
to track per-host progress, and the proxy-group bookkeeping types (Proxy,
ProxyGroup, HostProxyBinding) used to decide which remote proxy owns which
host.

# Core Types

Rule definition:
  - Rule: druleid, delay, iprange, checks, revision
  - Check: one probe definition (type, ports, timeout, per-type parameters)
  - CheckType: ICMP, AGENT, TCP, SMTP, FTP, POP, IMAP, NNTP, HTTP, HTTPS, SSH,
    TELNET, LDAP, SNMPv1, SNMPv2c, SNMPv3

Scheduler-expanded work:
  - Task: one enumeration unit within a Job (iteration state + checks)
  - Job: a materialised Rule instance with its task list and worker budget
  - JobStatus: QUEUED, WAITING, REMOVING

Result tracking:
  - CheckKey: the (druleid, ip) key ResultStore counts unresolved checks under
  - Result: per (druleid, ip) accumulator of discovered services
  - RuleError: an error text associated with a rule id

Proxy-group membership:
  - Proxy: a remote probe executor
  - ProxyGroup: failover policy and membership for a set of proxies
  - HostProxyBinding: authoritative host-to-proxy mapping used by redirects

# Thread Safety

Types in this package are plain data: read-safe when not mutated
concurrently, but callers (queue, resultstore, proxygroup) are responsible
for synchronizing writes. None of these types embed a mutex themselves.
*/
package types
