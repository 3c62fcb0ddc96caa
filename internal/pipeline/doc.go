// Package pipeline содержит движок выполнения инструментов технического зрения.
//
// Job хранит инструменты в упорядоченном списке и рёбра между ними как множества
// целочисленных id. Выполнение обходит граф в топологическом порядке: инструмент
// запускается, когда все его входы обработаны; изображение и результат берутся
// у основного источника (primary source), если он задан, иначе у последнего
// выполненного инструмента.
//
// Engine держит текущий Job, пропускает кадры для заданий с детектором чаще
// detection_interval и умеет сохранять Job в переносимый документ (JSON или YAML).
package pipeline
