package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/vkframe/engine/assets/loaders"
	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/renderer/metadata"
)

// changeBuffer bounds the number of change notifications waiting for the
// engine loop. Extra notifications are dropped.
const changeBuffer = 64

type AssetInfo struct {
	Path       string
	Type       metadata.ResourceType
	LastLoaded time.Time
}

// AssetChange is published when a tracked file is written, created or
// removed while watching is enabled.
type AssetChange struct {
	Path    string
	Type    metadata.ResourceType
	Removed bool
}

type AssetManager struct {
	dir     string
	watch   bool
	flipY   bool
	assets  map[string]AssetInfo
	loaders map[metadata.ResourceType]Loader

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	changes  chan AssetChange
}

// NewAssetManager indexes assets under dir. Relative asset paths are
// resolved against dir.
func NewAssetManager(dir string, watch, flipY bool) (*AssetManager, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &AssetManager{
		dir:     abs,
		watch:   watch,
		flipY:   flipY,
		assets:  make(map[string]AssetInfo),
		loaders: make(map[metadata.ResourceType]Loader),
		changes: make(chan AssetChange, changeBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

func (am *AssetManager) Initialize() error {
	// Register loaders
	am.registerLoader(metadata.ResourceTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(metadata.ResourceTypeImage, &loaders.ImageLoader{})
	am.registerLoader(metadata.ResourceTypeModel, &loaders.ModelLoader{})

	if _, err := os.Stat(am.dir); err != nil {
		err = fmt.Errorf("assets directory %s: %w", am.dir, err)
		core.LogError(err.Error())
		return err
	}

	if !am.watch {
		return am.watchRecursive(am.dir, false)
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	am.fsnotify = fsWatch
	if err := am.watchRecursive(am.dir, false); err != nil {
		fsWatch.Close()
		return err
	}
	go am.start()

	core.LogInfo("watching %s for asset changes", am.dir)
	return nil
}

// Shutdown stops the watcher. The Changes channel is closed once the
// watcher goroutine has exited.
func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	am.mutex.Unlock()

	if am.fsnotify == nil {
		return nil
	}
	close(am.done)
	<-am.stopped
	return nil
}

// Changes delivers file change notifications. Drain it from the thread
// that owns the render system.
func (am *AssetManager) Changes() <-chan AssetChange {
	return am.changes
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType metadata.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// Resolve returns the cleaned absolute path of an asset.
func (am *AssetManager) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(am.dir, path)
}

// Load an asset using the appropriate loader
func (am *AssetManager) LoadAsset(path string, params interface{}) (*metadata.Resource, error) {
	path = am.Resolve(path)

	am.mutex.RLock()
	asset, exists := am.assets[path]
	am.mutex.RUnlock()
	if !exists {
		// Files added while not watching are picked up lazily.
		if _, err := os.Stat(path); err != nil {
			err = fmt.Errorf("%w: %s", core.ErrAssetNotFound, path)
			core.LogError(err.Error())
			return nil, err
		}
		asset = AssetInfo{Path: path, Type: determineAssetType(path)}
	}
	if asset.Type == metadata.ResourceTypeNone {
		err := fmt.Errorf("%w: %s", core.ErrUnsupportedAsset, path)
		core.LogError(err.Error())
		return nil, err
	}

	loader, loaderExists := am.loaders[asset.Type]
	if !loaderExists {
		err := fmt.Errorf("no loader registered for asset type: %s", asset.Type)
		core.LogError(err.Error())
		return nil, err
	}

	res, err := loader.Load(path, asset.Type, params)
	if err != nil {
		return nil, err
	}

	// Load or reload asset from disk if necessary
	asset.LastLoaded = time.Now()
	am.mutex.Lock()
	am.assets[path] = asset // Update the loaded time
	am.mutex.Unlock()

	core.LogDebug("loaded %s asset %s", asset.Type, path)
	return res, nil
}

func (am *AssetManager) UnloadAsset(asset *metadata.Resource) error {
	loader, ok := am.loaders[asset.Type]
	if !ok {
		return nil
	}
	return loader.Unload(asset)
}

// LoadShader returns the SPIR-V words of a compiled shader.
func (am *AssetManager) LoadShader(path string) ([]uint32, error) {
	res, err := am.loadTyped(path, metadata.ResourceTypeShader, nil)
	if err != nil {
		return nil, err
	}
	return res.Data.([]uint32), nil
}

// LoadImage decodes an image into RGBA8, flipped according to the
// manager's FlipY setting.
func (am *AssetManager) LoadImage(path string) (*metadata.ImageData, error) {
	res, err := am.loadTyped(path, metadata.ResourceTypeImage, &metadata.ImageResourceParams{FlipY: am.flipY})
	if err != nil {
		return nil, err
	}
	return res.Data.(*metadata.ImageData), nil
}

// LoadMesh reads an OBJ model.
func (am *AssetManager) LoadMesh(path string) (*metadata.MeshData, error) {
	res, err := am.loadTyped(path, metadata.ResourceTypeModel, nil)
	if err != nil {
		return nil, err
	}
	return res.Data.(*metadata.MeshData), nil
}

func (am *AssetManager) loadTyped(path string, expected metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	if t := determineAssetType(path); t != expected {
		err := fmt.Errorf("%w: %s is a %s asset, expected %s", core.ErrUnsupportedAsset, path, t, expected)
		core.LogError(err.Error())
		return nil, err
	}
	return am.LoadAsset(path, params)
}

// Info returns what the index knows about an asset.
func (am *AssetManager) Info(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[am.Resolve(path)]
	return info, ok
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	defer close(am.changes)

	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleEvent(e)

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			if err := am.fsnotify.Close(); err != nil {
				core.LogError(err.Error())
			}
			return
		}
	}
}

func (am *AssetManager) handleEvent(e fsnotify.Event) {
	s, err := os.Stat(e.Name)
	if err == nil && s != nil && s.IsDir() {
		if e.Op&fsnotify.Create != 0 {
			if err := am.watchRecursive(e.Name, false); err != nil {
				core.LogError(err.Error())
			}
		}
		return
	}
	// Handle create or modify events
	if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		if info, ok := am.handleFileEvent(e.Name); ok {
			am.publish(AssetChange{Path: info.Path, Type: info.Type})
		}
	}
	// Can't stat a deleted file, so whatever it was it leaves the index.
	if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		if info, ok := am.removeAsset(e.Name); ok {
			am.publish(AssetChange{Path: info.Path, Type: info.Type, Removed: true})
		}
	}
}

func (am *AssetManager) publish(change AssetChange) {
	select {
	case am.changes <- change:
	default:
		core.LogWarn("asset change queue full, dropping change of %s", change.Path)
	}
}

// watchRecursive indexes every file under path and, when watching, adds
// each directory to the watch list.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if am.fsnotify == nil {
				return nil
			}
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) (AssetInfo, bool) {
	path = filepath.Clean(path)
	assetType := determineAssetType(path)
	if assetType == metadata.ResourceTypeNone {
		return AssetInfo{}, false
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	info := am.assets[path]
	info.Path = path
	info.Type = assetType
	am.assets[path] = info
	return info, true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) (AssetInfo, bool) {
	path = filepath.Clean(path)

	am.mutex.Lock()
	defer am.mutex.Unlock()
	info, ok := am.assets[path]
	delete(am.assets, path)
	return info, ok
}

func determineAssetType(path string) metadata.ResourceType {
	switch assetExt(path) {
	case ".spv":
		return metadata.ResourceTypeShader
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp":
		return metadata.ResourceTypeImage
	case ".obj":
		return metadata.ResourceTypeModel
	default:
		return metadata.ResourceTypeNone
	}
}

// assetExt returns the lower case extension, looking through .lz4.
func assetExt(path string) string {
	return strings.ToLower(filepath.Ext(loaders.TrimCompression(path)))
}
