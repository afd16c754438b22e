// Package harvest defines the core types and collaborator interfaces shared by
// the catalog harvester: query partitions, catalog records, image descriptors,
// extraction strategies, and the Session, Browser, Fetcher, and Store
// capabilities the state machines are written against.
package harvest
