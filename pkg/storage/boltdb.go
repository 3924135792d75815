package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketNodes     = []byte("nodes")
	bucketWorkloads = []byte("workloads")
	bucketTemplates = []byte("templates")
	bucketAccess    = []byte("access")
	bucketRoles     = []byte("roles")
	bucketUsers     = []byte("users")
	bucketIPPools   = []byte("ippools")
	bucketLogs      = []byte("workload_logs")
	bucketMetrics   = []byte("workload_metrics")
	bucketAudit     = []byte("audit")
	bucketBackups   = []byte("backups")
	bucketSessions  = []byte("sessions")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "catalyst.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketNodes,
			bucketWorkloads,
			bucketTemplates,
			bucketAccess,
			bucketRoles,
			bucketUsers,
			bucketIPPools,
			bucketLogs,
			bucketMetrics,
			bucketAudit,
			bucketBackups,
			bucketSessions,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Transact runs fn in a single write transaction
func (s *BoltStore) Transact(fn func(tx Tx) error) error {
	return s.db.Update(func(btx *bolt.Tx) error {
		return fn(&boltTx{tx: btx})
	})
}

func putJSON(tx *bolt.Tx, bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

// Node operations

func (s *BoltStore) CreateNode(node *types.Node) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketNodes, node.ID, node)
	})
}

func (s *BoltStore) GetNode(id string) (*types.Node, error) {
	var node *types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		node, err = getNode(tx, id)
		return err
	})
	return node, err
}

func getNode(tx *bolt.Tx, id string) (*types.Node, error) {
	data := tx.Bucket(bucketNodes).Get([]byte(id))
	if data == nil {
		return nil, errdefs.NotFound("node", id)
	}
	var node types.Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *BoltStore) GetNodeByName(name string) (*types.Node, error) {
	var found *types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
			var node types.Node
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			if node.Name == name {
				found = &node
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errdefs.NotFound("node", name)
	}
	return found, nil
}

func (s *BoltStore) ListNodes() ([]*types.Node, error) {
	var nodes []*types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
			var node types.Node
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			nodes = append(nodes, &node)
			return nil
		})
	})
	return nodes, err
}

func (s *BoltStore) UpdateNode(node *types.Node) error {
	return s.CreateNode(node) // Same as create (upsert)
}

func (s *BoltStore) DeleteNode(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).Delete([]byte(id))
	})
}

// Workload operations

func (s *BoltStore) CreateWorkload(w *types.Workload) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketWorkloads, w.ID, w)
	})
}

func (s *BoltStore) GetWorkload(id string) (*types.Workload, error) {
	var w *types.Workload
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		w, err = getWorkload(tx, id)
		return err
	})
	return w, err
}

func getWorkload(tx *bolt.Tx, id string) (*types.Workload, error) {
	data := tx.Bucket(bucketWorkloads).Get([]byte(id))
	if data == nil {
		return nil, errdefs.NotFound("workload", id)
	}
	var w types.Workload
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *BoltStore) GetWorkloadByUUID(uuid string) (*types.Workload, error) {
	var found *types.Workload
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWorkloads).ForEach(func(k, v []byte) error {
			var w types.Workload
			if err := json.Unmarshal(v, &w); err != nil {
				return err
			}
			if w.UUID == uuid {
				found = &w
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errdefs.NotFound("workload", uuid)
	}
	return found, nil
}

func (s *BoltStore) ListWorkloads() ([]*types.Workload, error) {
	var workloads []*types.Workload
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWorkloads).ForEach(func(k, v []byte) error {
			var w types.Workload
			if err := json.Unmarshal(v, &w); err != nil {
				return err
			}
			workloads = append(workloads, &w)
			return nil
		})
	})
	return workloads, err
}

func (s *BoltStore) ListWorkloadsByNode(nodeID string) ([]*types.Workload, error) {
	var workloads []*types.Workload
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		workloads, err = listWorkloadsByNode(tx, nodeID)
		return err
	})
	return workloads, err
}

func listWorkloadsByNode(tx *bolt.Tx, nodeID string) ([]*types.Workload, error) {
	var workloads []*types.Workload
	err := tx.Bucket(bucketWorkloads).ForEach(func(k, v []byte) error {
		var w types.Workload
		if err := json.Unmarshal(v, &w); err != nil {
			return err
		}
		if w.NodeID == nodeID {
			workloads = append(workloads, &w)
		}
		return nil
	})
	return workloads, err
}

func (s *BoltStore) UpdateWorkload(w *types.Workload) error {
	return s.CreateWorkload(w)
}

func (s *BoltStore) DeleteWorkload(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWorkloads).Delete([]byte(id))
	})
}

// Template operations

func (s *BoltStore) CreateTemplate(t *types.Template) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketTemplates, t.ID, t)
	})
}

func (s *BoltStore) GetTemplate(id string) (*types.Template, error) {
	var t *types.Template
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		t, err = getTemplate(tx, id)
		return err
	})
	return t, err
}

func getTemplate(tx *bolt.Tx, id string) (*types.Template, error) {
	data := tx.Bucket(bucketTemplates).Get([]byte(id))
	if data == nil {
		return nil, errdefs.NotFound("template", id)
	}
	var t types.Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *BoltStore) ListTemplates() ([]*types.Template, error) {
	var templates []*types.Template
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTemplates).ForEach(func(k, v []byte) error {
			var t types.Template
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			templates = append(templates, &t)
			return nil
		})
	})
	return templates, err
}

func (s *BoltStore) UpdateTemplate(t *types.Template) error {
	return s.CreateTemplate(t)
}

func (s *BoltStore) DeleteTemplate(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTemplates).Delete([]byte(id))
	})
}

// Access operations. Keys embed the workload id so per-workload scans and
// deletes can use a cursor prefix instead of a full-bucket walk.

func accessKey(workloadID, id string) []byte {
	return []byte(workloadID + "/" + id)
}

func (s *BoltStore) CreateAccess(a *types.WorkloadAccess) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketAccess).Put(accessKey(a.WorkloadID, a.ID), data)
	})
}

func (s *BoltStore) ListAccessByWorkload(workloadID string) ([]*types.WorkloadAccess, error) {
	var grants []*types.WorkloadAccess
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAccess).Cursor()
		prefix := []byte(workloadID + "/")
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var a types.WorkloadAccess
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			grants = append(grants, &a)
		}
		return nil
	})
	return grants, err
}

func (s *BoltStore) ListAccessByUser(userID string) ([]*types.WorkloadAccess, error) {
	var grants []*types.WorkloadAccess
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccess).ForEach(func(k, v []byte) error {
			var a types.WorkloadAccess
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if a.UserID == userID {
				grants = append(grants, &a)
			}
			return nil
		})
	})
	return grants, err
}

func (s *BoltStore) DeleteAccess(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccess)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var a types.WorkloadAccess
			if err := json.Unmarshal(v, &a); err != nil {
				continue
			}
			if a.ID == id {
				return b.Delete(k)
			}
		}
		return errdefs.NotFound("access grant", id)
	})
}

func (s *BoltStore) DeleteAccessByWorkload(workloadID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return deleteAccessByWorkload(tx, workloadID)
	})
}

func deleteAccessByWorkload(tx *bolt.Tx, workloadID string) error {
	b := tx.Bucket(bucketAccess)
	c := b.Cursor()
	prefix := []byte(workloadID + "/")
	var keys [][]byte
	for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Role operations

func (s *BoltStore) CreateRole(r *types.Role) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketRoles, r.ID, r)
	})
}

func (s *BoltStore) GetRole(id string) (*types.Role, error) {
	var role types.Role
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRoles).Get([]byte(id))
		if data == nil {
			return errdefs.NotFound("role", id)
		}
		return json.Unmarshal(data, &role)
	})
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *BoltStore) ListRoles() ([]*types.Role, error) {
	var roles []*types.Role
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoles).ForEach(func(k, v []byte) error {
			var r types.Role
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			roles = append(roles, &r)
			return nil
		})
	})
	return roles, err
}

func (s *BoltStore) DeleteRole(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoles).Delete([]byte(id))
	})
}

// User operations

func (s *BoltStore) CreateUser(u *types.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketUsers, u.ID, u)
	})
}

func (s *BoltStore) GetUser(id string) (*types.User, error) {
	var user types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(id))
		if data == nil {
			return errdefs.NotFound("user", id)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BoltStore) ListUsers() ([]*types.User, error) {
	var users []*types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var u types.User
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
			users = append(users, &u)
			return nil
		})
	})
	return users, err
}

func (s *BoltStore) DeleteUser(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).Delete([]byte(id))
	})
}

// IP pool operations

func (s *BoltStore) CreateIPPool(p *types.IPPool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketIPPools, p.ID, p)
	})
}

func (s *BoltStore) GetIPPool(id string) (*types.IPPool, error) {
	var pool types.IPPool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketIPPools).Get([]byte(id))
		if data == nil {
			return errdefs.NotFound("ip pool", id)
		}
		return json.Unmarshal(data, &pool)
	})
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

func (s *BoltStore) FindIPPool(nodeID, networkName string) (*types.IPPool, error) {
	var pool *types.IPPool
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		pool, err = findIPPool(tx, nodeID, networkName)
		return err
	})
	return pool, err
}

func findIPPool(tx *bolt.Tx, nodeID, networkName string) (*types.IPPool, error) {
	var found *types.IPPool
	err := tx.Bucket(bucketIPPools).ForEach(func(k, v []byte) error {
		var p types.IPPool
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		if p.NodeID == nodeID && p.NetworkName == networkName {
			found = &p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errdefs.Newf(errdefs.KindNotFound, "no ip pool for network %q on node %s", networkName, nodeID)
	}
	return found, nil
}

func (s *BoltStore) ListIPPools() ([]*types.IPPool, error) {
	var pools []*types.IPPool
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		pools, err = listIPPools(tx)
		return err
	})
	return pools, err
}

func listIPPools(tx *bolt.Tx) ([]*types.IPPool, error) {
	var pools []*types.IPPool
	err := tx.Bucket(bucketIPPools).ForEach(func(k, v []byte) error {
		var p types.IPPool
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		pools = append(pools, &p)
		return nil
	})
	return pools, err
}

func (s *BoltStore) ListIPPoolsByNode(nodeID string) ([]*types.IPPool, error) {
	pools, err := s.ListIPPools()
	if err != nil {
		return nil, err
	}
	var filtered []*types.IPPool
	for _, p := range pools {
		if p.NodeID == nodeID {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateIPPool(p *types.IPPool) error {
	return s.CreateIPPool(p)
}

func (s *BoltStore) DeleteIPPool(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIPPools).Delete([]byte(id))
	})
}

// Workload log operations. Keys are <workloadID>/<sequence> so entries sort
// in append order under a per-workload prefix.

func (s *BoltStore) AppendWorkloadLogs(entries []*types.WorkloadLog) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLogs)
		for _, e := range entries {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			key := fmt.Sprintf("%s/%020d", e.WorkloadID, seq)
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) ListWorkloadLogs(workloadID string, limit int) ([]*types.WorkloadLog, error) {
	var logs []*types.WorkloadLog
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLogs).Cursor()
		prefix := []byte(workloadID + "/")
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var e types.WorkloadLog
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			logs = append(logs, &e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	return logs, nil
}

// Metric sample operations. Same key scheme as workload logs.

func (s *BoltStore) AppendMetricSamples(samples []*types.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMetrics)
		for _, sample := range samples {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			key := fmt.Sprintf("%s/%020d", sample.WorkloadID, seq)
			data, err := json.Marshal(sample)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) ListMetricSamples(workloadID string, limit int) ([]*types.MetricSample, error) {
	var samples []*types.MetricSample
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketMetrics).Cursor()
		prefix := []byte(workloadID + "/")
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var sample types.MetricSample
			if err := json.Unmarshal(v, &sample); err != nil {
				return err
			}
			samples = append(samples, &sample)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(samples) > limit {
		samples = samples[len(samples)-limit:]
	}
	return samples, nil
}

// Audit operations. Sequence-prefixed keys keep the trail in write order.

func (s *BoltStore) AppendAudit(entry *types.AuditEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAudit)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(fmt.Sprintf("%020d", seq)), data)
	})
}

func (s *BoltStore) ListAudit(limit int) ([]*types.AuditEntry, error) {
	var entries []*types.AuditEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAudit).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var e types.AuditEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, &e)
			if limit > 0 && len(entries) >= limit {
				return nil
			}
		}
		return nil
	})
	return entries, err
}

// Backup operations

func (s *BoltStore) CreateBackup(b *types.Backup) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketBackups, b.ID, b)
	})
}

func (s *BoltStore) GetBackup(id string) (*types.Backup, error) {
	var backup types.Backup
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBackups).Get([]byte(id))
		if data == nil {
			return errdefs.NotFound("backup", id)
		}
		return json.Unmarshal(data, &backup)
	})
	if err != nil {
		return nil, err
	}
	return &backup, nil
}

func (s *BoltStore) ListBackupsByWorkload(workloadID string) ([]*types.Backup, error) {
	var backups []*types.Backup
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBackups).ForEach(func(k, v []byte) error {
			var b types.Backup
			if err := json.Unmarshal(v, &b); err != nil {
				return err
			}
			if b.WorkloadID == workloadID {
				backups = append(backups, &b)
			}
			return nil
		})
	})
	return backups, err
}

func (s *BoltStore) DeleteBackup(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBackups).Delete([]byte(id))
	})
}

// Session operations

func (s *BoltStore) PutSession(sess *types.Session) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketSessions, sess.Token, sess)
	})
}

func (s *BoltStore) GetSession(token string) (*types.Session, error) {
	var sess types.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSessions).Get([]byte(token))
		if data == nil {
			return errdefs.New(errdefs.KindAuthFailed, "session not found")
		}
		return json.Unmarshal(data, &sess)
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *BoltStore) DeleteSession(token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(token))
	})
}

func (s *BoltStore) DeleteExpiredSessions(now time.Time) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var sess types.Session
			if err := json.Unmarshal(v, &sess); err != nil {
				return err
			}
			if now.After(sess.ExpiresAt) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		deleted = len(expired)
		return nil
	})
	return deleted, err
}

// boltTx adapts a bbolt write transaction to the Tx interface

type boltTx struct {
	tx *bolt.Tx
}

func (t *boltTx) GetNode(id string) (*types.Node, error) {
	return getNode(t.tx, id)
}

func (t *boltTx) PutNode(node *types.Node) error {
	return putJSON(t.tx, bucketNodes, node.ID, node)
}

func (t *boltTx) GetWorkload(id string) (*types.Workload, error) {
	return getWorkload(t.tx, id)
}

func (t *boltTx) PutWorkload(w *types.Workload) error {
	return putJSON(t.tx, bucketWorkloads, w.ID, w)
}

func (t *boltTx) DeleteWorkload(id string) error {
	return t.tx.Bucket(bucketWorkloads).Delete([]byte(id))
}

func (t *boltTx) ListWorkloadsByNode(nodeID string) ([]*types.Workload, error) {
	return listWorkloadsByNode(t.tx, nodeID)
}

func (t *boltTx) GetTemplate(id string) (*types.Template, error) {
	return getTemplate(t.tx, id)
}

func (t *boltTx) FindIPPool(nodeID, networkName string) (*types.IPPool, error) {
	return findIPPool(t.tx, nodeID, networkName)
}

func (t *boltTx) ListIPPools() ([]*types.IPPool, error) {
	return listIPPools(t.tx)
}

func (t *boltTx) PutIPPool(p *types.IPPool) error {
	return putJSON(t.tx, bucketIPPools, p.ID, p)
}

func (t *boltTx) PutAccess(a *types.WorkloadAccess) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return t.tx.Bucket(bucketAccess).Put(accessKey(a.WorkloadID, a.ID), data)
}

func (t *boltTx) DeleteAccessByWorkload(workloadID string) error {
	return deleteAccessByWorkload(t.tx, workloadID)
}

func (t *boltTx) PutBackup(b *types.Backup) error {
	return putJSON(t.tx, bucketBackups, b.ID, b)
}
