package master

import "github.com/wikieden/tachyon/pkg/tachyon"

// placementIndex is the reverse index from file-id to the set of
// worker-ids currently holding it. It owns no records of its own — it
// is maintained in lockstep with inodeStore and workerRegistry by
// masterService, inside the same critical section, the way
// chunkInfo.location mirrors chunkServerManager's per-server chunk set
// in the teacher.
type placementIndex struct {
	byFile map[tachyon.FileID]map[tachyon.WorkerID]bool
}

func newPlacementIndex() *placementIndex {
	return &placementIndex{byFile: make(map[tachyon.FileID]map[tachyon.WorkerID]bool)}
}

func (p *placementIndex) add(fileID tachyon.FileID, workerID tachyon.WorkerID) {
	set, ok := p.byFile[fileID]
	if !ok {
		set = make(map[tachyon.WorkerID]bool)
		p.byFile[fileID] = set
	}
	set[workerID] = true
}

func (p *placementIndex) remove(fileID tachyon.FileID, workerID tachyon.WorkerID) {
	set, ok := p.byFile[fileID]
	if !ok {
		return
	}
	delete(set, workerID)
	if len(set) == 0 {
		delete(p.byFile, fileID)
	}
}

// removeWorker drops every placement entry contributed by workerID,
// e.g. on worker timeout.
func (p *placementIndex) removeWorker(workerID tachyon.WorkerID) {
	for fileID, set := range p.byFile {
		if set[workerID] {
			delete(set, workerID)
			if len(set) == 0 {
				delete(p.byFile, fileID)
			}
		}
	}
}

// removeFile drops every placement entry for fileID, e.g. on delete.
func (p *placementIndex) removeFile(fileID tachyon.FileID) {
	delete(p.byFile, fileID)
}

func (p *placementIndex) workersFor(fileID tachyon.FileID) []tachyon.WorkerID {
	set, ok := p.byFile[fileID]
	if !ok {
		return nil
	}
	out := make([]tachyon.WorkerID, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	return out
}

func (p *placementIndex) inMemory(fileID tachyon.FileID) bool {
	return len(p.byFile[fileID]) > 0
}

// reconcile replaces workerID's placement entries: it removes workerID
// from every file in previouslyDeclared, then adds it to every file in
// declared, as done on registration.
func (p *placementIndex) reconcile(workerID tachyon.WorkerID, declared []tachyon.FileID, previouslyDeclared []tachyon.FileID) {
	for _, fileID := range previouslyDeclared {
		p.remove(fileID, workerID)
	}
	for _, fileID := range declared {
		p.add(fileID, workerID)
	}
}
