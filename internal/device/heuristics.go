package device

import (
	"strings"

	"github.com/skyeyinkun/homelink-core/internal/hass"
)

// TypeInfo is the outcome of type inference for one entity.
type TypeInfo struct {
	Type     string
	Label    string
	Icon     string
	Category Category
}

// roomKeyword maps a name fragment to a canonical room label. Order
// matters: longer fragments come first so "主卧室" wins over "卧".
type roomKeyword struct {
	fragment string
	room     string
}

// roomKeywords covers the naming conventions seen in the field: Chinese
// friendly names and English entity id fragments.
var roomKeywords = []roomKeyword{
	{"主卧室", "主卧"},
	{"主卧", "主卧"},
	{"次卧室", "次卧"},
	{"次卧", "次卧"},
	{"儿童房", "儿童房"},
	{"老人房", "老人房"},
	{"客房", "客房"},
	{"客厅", "客厅"},
	{"餐厅", "餐厅"},
	{"厨房", "厨房"},
	{"卫生间", "卫生间"},
	{"洗手间", "卫生间"},
	{"厕所", "卫生间"},
	{"浴室", "浴室"},
	{"书房", "书房"},
	{"阳台", "阳台"},
	{"露台", "阳台"},
	{"玄关", "玄关"},
	{"走廊", "走廊"},
	{"过道", "走廊"},
	{"楼梯", "楼梯"},
	{"车库", "车库"},
	{"花园", "花园"},
	{"庭院", "庭院"},
	{"衣帽间", "衣帽间"},
	{"储物间", "储物间"},
	{"地下室", "地下室"},
	{"阁楼", "阁楼"},
	{"门厅", "门厅"},
	{"会议室", "会议室"},
	{"办公室", "办公室"},
	{"健身房", "健身房"},
	{"影音室", "影音室"},
	{"茶室", "茶室"},
	{"洗衣房", "洗衣房"},
	{"master_bedroom", "Master Bedroom"},
	{"living_room", "Living Room"},
	{"bedroom", "Bedroom"},
	{"kitchen", "Kitchen"},
	{"bathroom", "Bathroom"},
	{"study", "Study"},
	{"balcony", "Balcony"},
	{"hallway", "Hallway"},
	{"garage", "Garage"},
	{"garden", "Garden"},
}

// typeKeyword maps name fragments to a device type.
type typeKeyword struct {
	fragments []string
	info      TypeInfo
}

var typeKeywords = []typeKeyword{
	{[]string{"灯带", "台灯", "壁灯", "吊灯", "射灯", "夜灯", "筒灯", "落地灯", "吸顶灯", "灯光", "灯"},
		TypeInfo{"light", "灯", "lightbulb", CategoryLighting}},
	{[]string{"墙壁开关", "智能开关", "单开", "双开", "三开", "开关"},
		TypeInfo{"switch", "开关", "toggle-switch", CategorySwitch}},
	{[]string{"智能插座", "排插", "插座"},
		TypeInfo{"outlet", "插座", "power-socket-eu", CategorySwitch}},
	{[]string{"窗帘", "纱帘", "卷帘", "百叶窗", "遮阳帘", "布帘"},
		TypeInfo{"curtain", "窗帘", "curtains", CategoryCurtain}},
	{[]string{"中央空调", "立式空调", "挂式空调", "柜式空调", "空调"},
		TypeInfo{"ac", "空调", "air-conditioner", CategoryHVAC}},
	{[]string{"暖气", "地暖", "暖风机", "电暖", "壁挂炉", "散热器"},
		TypeInfo{"heater", "暖气", "radiator", CategoryHVAC}},
	{[]string{"风扇", "吊扇", "电扇", "换气扇"},
		TypeInfo{"fan", "风扇", "fan", CategoryHVAC}},
	{[]string{"新风", "加湿器", "除湿机", "净化器", "空气净化"},
		TypeInfo{"air_purifier", "新风净化", "air-purifier", CategoryHVAC}},
	{[]string{"门锁", "智能锁", "指纹锁", "密码锁"},
		TypeInfo{"lock", "门锁", "lock", CategorySecurity}},
	{[]string{"摄像头", "摄像机", "监控"},
		TypeInfo{"camera", "摄像头", "cctv", CategorySecurity}},
	{[]string{"门磁", "窗磁", "门窗传感器"},
		TypeInfo{"door_sensor", "门窗传感器", "door-closed", CategorySecurity}},
	{[]string{"人体传感", "存在传感", "红外传感", "人体", "人感", "雷达"},
		TypeInfo{"motion_sensor", "人体传感器", "motion-sensor", CategorySensor}},
	{[]string{"温湿度", "温度计", "温度", "湿度"},
		TypeInfo{"temp_sensor", "温湿度", "thermometer", CategorySensor}},
	{[]string{"烟雾", "烟感", "煤气", "燃气", "天然气"},
		TypeInfo{"smoke_sensor", "烟雾报警", "smoke-detector", CategorySecurity}},
	{[]string{"水浸", "漏水"},
		TypeInfo{"water_leak", "水浸传感器", "water-alert", CategorySecurity}},
	{[]string{"电视", "投影仪", "投影"},
		TypeInfo{"media", "电视", "television", CategoryOther}},
	{[]string{"智能音箱", "音箱", "音响"},
		TypeInfo{"speaker", "音箱", "speaker", CategoryOther}},
	{[]string{"扫地机器人", "扫地机", "吸尘器", "拖地机"},
		TypeInfo{"vacuum", "扫地机", "robot-vacuum", CategoryOther}},
	{[]string{"万能遥控", "遥控", "红外"},
		TypeInfo{"remote", "遥控器", "remote", CategoryOther}},
}

// domainIcons is the fallback MDI icon per domain.
var domainIcons = map[string]string{
	"light":               "lightbulb",
	"switch":              "toggle-switch",
	"input_boolean":       "toggle-switch",
	"sensor":              "gauge",
	"binary_sensor":       "motion-sensor",
	"cover":               "curtains",
	"climate":             "air-conditioner",
	"fan":                 "fan",
	"humidifier":          "air-humidifier",
	"media_player":        "television",
	"lock":                "lock",
	"camera":              "cctv",
	"vacuum":              "robot-vacuum",
	"alarm_control_panel": "shield-home",
	"remote":              "remote",
	"water_heater":        "water-boiler",
	"air_quality":         "air-filter",
	"scene":               "palette",
	"automation":          "robot",
	"script":              "script-text",
	"person":              "account",
}

// DomainIcon returns the default MDI icon name for a domain.
func DomainIcon(domain string) string {
	if icon, ok := domainIcons[domain]; ok {
		return icon
	}
	return "devices"
}

// InferRoom guesses a room from the friendly name, then from the entity
// id, returning RoomUnassigned when nothing matches.
func InferRoom(friendlyName, entityID string) string {
	for _, kw := range roomKeywords {
		if strings.Contains(friendlyName, kw.fragment) {
			return kw.room
		}
	}
	lower := strings.ToLower(entityID)
	for _, kw := range roomKeywords {
		if strings.Contains(lower, kw.fragment) {
			return kw.room
		}
	}
	return RoomUnassigned
}

// InferType resolves the device type for an entity: name keywords first,
// then a domain plus device-class lookup.
func InferType(friendlyName, domain, deviceClass string, attrs hass.Attributes) TypeInfo {
	for _, kw := range typeKeywords {
		for _, fragment := range kw.fragments {
			if strings.Contains(friendlyName, fragment) {
				return kw.info
			}
		}
	}

	switch domain {
	case "light":
		// Feature bit 0 marks brightness support.
		if attrs.SupportedFeatures()&1 != 0 {
			return TypeInfo{"dimmer", "调光灯", "lightbulb-on", CategoryLighting}
		}
		return TypeInfo{"light", "灯", "lightbulb", CategoryLighting}
	case "switch", "input_boolean":
		if deviceClass == "outlet" {
			return TypeInfo{"outlet", "插座", "power-socket-eu", CategorySwitch}
		}
		return TypeInfo{"switch", "开关", "toggle-switch", CategorySwitch}
	case "cover":
		return TypeInfo{"curtain", "窗帘", "curtains", CategoryCurtain}
	case "climate":
		return TypeInfo{"ac", "空调", "air-conditioner", CategoryHVAC}
	case "fan":
		return TypeInfo{"fan", "风扇", "fan", CategoryHVAC}
	case "humidifier":
		return TypeInfo{"air_purifier", "加湿器", "air-humidifier", CategoryHVAC}
	case "media_player":
		return TypeInfo{"media", "媒体播放", "television", CategoryOther}
	case "lock":
		return TypeInfo{"lock", "门锁", "lock", CategorySecurity}
	case "camera":
		return TypeInfo{"camera", "摄像头", "cctv", CategorySecurity}
	case "vacuum":
		return TypeInfo{"vacuum", "扫地机", "robot-vacuum", CategoryOther}
	case "remote":
		return TypeInfo{"remote", "遥控器", "remote", CategoryOther}
	case "alarm_control_panel":
		return TypeInfo{"alarm", "报警器", "shield-home", CategorySecurity}
	case "person":
		return TypeInfo{"person", "人员", "account", CategoryPerson}
	case "sensor":
		return inferSensorType(friendlyName, deviceClass, attrs)
	case "binary_sensor":
		return inferBinarySensorType(friendlyName, deviceClass)
	default:
		return TypeInfo{"other", "设备", "devices", CategoryOther}
	}
}

// inferSensorType narrows a sensor entity to a measurement subtype.
func inferSensorType(name, deviceClass string, attrs hass.Attributes) TypeInfo {
	unit := attrs.UnitOfMeasurement()

	switch {
	case deviceClass == "temperature" || unit == "°C" || unit == "°F" || strings.Contains(name, "温度"):
		return TypeInfo{"temp_sensor", "温度", "thermometer", CategorySensor}
	case deviceClass == "humidity" || (unit == "%" && strings.Contains(name, "湿度")):
		return TypeInfo{"humidity_sensor", "湿度", "water-percent", CategorySensor}
	case deviceClass == "illuminance" || unit == "lx" || strings.Contains(name, "光照"):
		return TypeInfo{"light_sensor", "光照", "brightness-6", CategorySensor}
	case deviceClass == "pm25" || strings.Contains(name, "PM2.5") || strings.Contains(name, "pm25"):
		return TypeInfo{"pm25_sensor", "PM2.5", "blur", CategorySensor}
	case deviceClass == "co2" || strings.Contains(name, "CO2") || strings.Contains(name, "二氧化碳"):
		return TypeInfo{"co2_sensor", "CO2", "molecule-co2", CategorySensor}
	case deviceClass == "power" || unit == "W" || unit == "kW":
		return TypeInfo{"power_sensor", "功率", "flash", CategorySensor}
	case deviceClass == "energy" || unit == "kWh":
		return TypeInfo{"energy_sensor", "电量", "lightning-bolt", CategorySensor}
	case deviceClass == "battery" || (unit == "%" && strings.Contains(name, "电")):
		return TypeInfo{"battery_sensor", "电池", "battery", CategorySensor}
	}
	return TypeInfo{"sensor", "传感器", "gauge", CategorySensor}
}

// inferBinarySensorType narrows a binary sensor to its trigger subtype.
func inferBinarySensorType(name, deviceClass string) TypeInfo {
	switch {
	case deviceClass == "motion" || deviceClass == "occupancy" || deviceClass == "presence" ||
		strings.Contains(name, "人体") || strings.Contains(name, "人感"):
		return TypeInfo{"motion_sensor", "人体传感器", "motion-sensor", CategorySensor}
	case deviceClass == "door" || deviceClass == "garage_door" ||
		strings.Contains(name, "门磁") || strings.Contains(name, "门"):
		return TypeInfo{"door_sensor", "门磁", "door-closed", CategorySecurity}
	case deviceClass == "window" || strings.Contains(name, "窗"):
		return TypeInfo{"window_sensor", "窗磁", "window-closed-variant", CategorySecurity}
	case deviceClass == "smoke" || strings.Contains(name, "烟"):
		return TypeInfo{"smoke_sensor", "烟雾", "smoke-detector", CategorySecurity}
	case deviceClass == "moisture" || strings.Contains(name, "水浸") || strings.Contains(name, "漏水"):
		return TypeInfo{"water_leak", "水浸", "water-alert", CategorySecurity}
	}
	return TypeInfo{"binary_sensor", "传感器", "checkbox-marked-circle-outline", CategorySensor}
}

// securityBinaryClasses are binary-sensor device classes treated as
// security category by the domain fallback.
var securityBinaryClasses = map[string]bool{
	"door": true, "garage_door": true, "lock": true, "opening": true,
	"safety": true, "smoke": true, "window": true, "tamper": true,
}

// CategorizeDomain maps a domain plus device class to a coarse category.
func CategorizeDomain(domain, deviceClass string) Category {
	switch domain {
	case "person":
		return CategoryPerson
	case "scene":
		return CategoryScene
	case "lock", "alarm_control_panel", "camera":
		return CategorySecurity
	case "binary_sensor":
		if securityBinaryClasses[deviceClass] {
			return CategorySecurity
		}
		return CategorySensor
	case "light":
		return CategoryLighting
	case "switch", "input_boolean":
		return CategorySwitch
	case "climate", "fan", "humidifier", "air_quality":
		return CategoryHVAC
	case "cover":
		return CategoryCurtain
	case "sensor":
		return CategorySensor
	default:
		return CategoryOther
	}
}

// CleanName strips a leading room fragment from a friendly name, leaving
// the bare device name.
func CleanName(friendlyName string) string {
	name := friendlyName
	for _, kw := range roomKeywords {
		if len([]rune(kw.fragment)) >= 2 && isCJK(kw.fragment) && strings.HasPrefix(name, kw.fragment) {
			name = strings.TrimPrefix(name, kw.fragment)
			break
		}
	}
	name = strings.TrimLeft(name, " -_·.")
	if name == "" {
		return friendlyName
	}
	return name
}

func isCJK(s string) bool {
	for _, r := range s {
		if r >= 0x4e00 && r <= 0x9fa5 {
			return true
		}
	}
	return false
}
