package router

// RealmSpec configures the router created for a realm.
type RealmSpec struct {
	Name string `yaml:"name"`
	// MaxSessions caps concurrently attached sessions; zero means unlimited.
	MaxSessions int `yaml:"max_sessions"`
	// DisclosePublisher reveals the publisher's session id on every event.
	DisclosePublisher bool `yaml:"disclose_publisher"`
	// DiscloseCaller reveals the caller's session id on every invocation.
	DiscloseCaller bool `yaml:"disclose_caller"`
	// MetaEvents enables publication of wamp.session.* / wamp.subscription.* /
	// wamp.registration.* meta events inside the realm.
	MetaEvents bool `yaml:"meta_events"`
}

// DefaultRealmSpec is used for realms created on demand.
func DefaultRealmSpec(name string) RealmSpec {
	return RealmSpec{Name: name, MetaEvents: true}
}

// RealmCatalog resolves realm names to their configuration.
type RealmCatalog interface {
	LookupRealm(name string) (RealmSpec, bool)
}

// StaticRealms is a fixed RealmCatalog.
type StaticRealms map[string]RealmSpec

func (s StaticRealms) LookupRealm(name string) (RealmSpec, bool) {
	spec, ok := s[name]
	if ok && spec.Name == "" {
		spec.Name = name
	}
	return spec, ok
}
