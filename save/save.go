// Package save 保存检测结果
package save

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/samber/lo"
	"github.com/sinspired/socks5-check/check"
	"github.com/sinspired/socks5-check/config"
	"github.com/sinspired/socks5-check/save/method"
)

const (
	CSVName = "working_proxies.csv"
	TXTName = "working_proxies.txt"
)

// utf8BOM 使 Excel 正确识别中文
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var csvHeader = []string{"代理", "出口IP", "国家", "地区", "延迟(ms)", "TCP", "UDP"}

// ExportFile 一个待保存的导出文件
type ExportFile struct {
	Name string
	Data []byte
}

func yesNo(b bool) string {
	if b {
		return "是"
	}
	return "否"
}

// WorkingProxies 只保留可用代理，保持原始顺序
func WorkingProxies(results []check.Result) []check.Result {
	return lo.Filter(results, func(r check.Result, _ int) bool { return r.OK })
}

// ExportCSV UTF-8 BOM + 表头 + 每个可用代理一行
func ExportCSV(results []check.Result) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	w.UseCRLF = true
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("写入CSV表头失败: %w", err)
	}
	for _, r := range WorkingProxies(results) {
		row := []string{
			r.Proxy,
			r.IP,
			r.Country,
			r.Region,
			strconv.FormatInt(r.Latency, 10),
			yesNo(r.TCP),
			yesNo(r.UDP),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("写入CSV失败: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("写入CSV失败: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportTXT 每行一个可用代理的原始输入
func ExportTXT(results []check.Result) []byte {
	var buf bytes.Buffer
	for _, r := range WorkingProxies(results) {
		buf.WriteString(r.Proxy)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// BuildExports 根据导出格式生成文件，没有可用代理时返回空
func BuildExports(results []check.Result, format string) ([]ExportFile, error) {
	if len(WorkingProxies(results)) == 0 {
		return nil, nil
	}

	var files []ExportFile
	if format == "csv" || format == "both" {
		data, err := ExportCSV(results)
		if err != nil {
			return nil, err
		}
		files = append(files, ExportFile{Name: CSVName, Data: data})
	}
	if format == "txt" || format == "both" {
		files = append(files, ExportFile{Name: TXTName, Data: ExportTXT(results)})
	}
	return files, nil
}

// SaveResults 导出可用代理，总是先保存一份到本地，再按配置上传
func SaveResults(results []check.Result) {
	files, err := BuildExports(results, config.GlobalConfig.ExportFormat)
	if err != nil {
		slog.Error(fmt.Sprintf("生成导出文件失败: %v", err))
		return
	}
	if len(files) == 0 {
		slog.Warn("没有可用代理，跳过保存")
		return
	}

	saveAll(files, "local", method.SaveToLocal)

	saveMethod := config.GlobalConfig.SaveMethod
	if saveMethod == "" || saveMethod == "local" {
		return
	}
	saveAll(files, saveMethod, chooseSaveMethod(saveMethod))
}

func saveAll(files []ExportFile, name string, save func([]byte, string) error) {
	for _, f := range files {
		if err := save(f.Data, f.Name); err != nil {
			slog.Error(fmt.Sprintf("保存到%s失败: %v", name, err), "file", f.Name)
		}
	}
}

// chooseSaveMethod 根据配置选择保存方法
func chooseSaveMethod(name string) func([]byte, string) error {
	switch name {
	case "r2":
		if err := method.ValiR2Config(); err != nil {
			return func([]byte, string) error { return fmt.Errorf("r2配置不完整: %v", err) }
		}
		return method.NewR2Uploader().Upload
	case "webdav":
		if err := method.ValiWebDAVConfig(); err != nil {
			return func([]byte, string) error { return fmt.Errorf("webDAV配置不完整: %v", err) }
		}
		uploader, err := method.NewWebDAVUploader()
		if err != nil {
			return func([]byte, string) error { return err }
		}
		return uploader.Upload
	case "s3":
		if err := method.ValiS3Config(); err != nil {
			return func([]byte, string) error { return fmt.Errorf("S3配置不完整: %v", err) }
		}
		uploader, err := method.NewS3Uploader()
		if err != nil {
			return func([]byte, string) error { return err }
		}
		return uploader.Upload
	case "local":
		return method.SaveToLocal
	default:
		return func([]byte, string) error {
			return fmt.Errorf("未知的保存方法: %v", name)
		}
	}
}
